package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/event"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewInMemoryStore()
	id := event.StreamID{Type: "counter", Name: "c-1"}

	_, err := store.Get(ctx, id)
	require.ErrorIs(t, err, snapshot.ErrNotFound)

	state := []byte(`{"value":3}`)
	require.NoError(t, store.Record(ctx, id, snapshot.Snapshot{Version: 3, State: state}))

	// The store keeps its own copy of the state.
	state[0] = 'x'

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Snapshot{Version: 3, State: []byte(`{"value":3}`)}, got)

	t.Run("older snapshots are ignored", func(t *testing.T) {
		require.NoError(t, store.Record(ctx, id, snapshot.Snapshot{Version: 2, State: []byte(`{}`)}))

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, snapshot.Snapshot{Version: 3, State: []byte(`{"value":3}`)}, got)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Get(canceled, id)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
