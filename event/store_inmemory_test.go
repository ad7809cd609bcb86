package event_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/version"
)

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, eventtest.NewStoreSuite(func() event.Store {
		return event.NewInMemoryStore()
	}, eventtest.WithoutSerialization()))
}

func TestInMemoryStore_Clock(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := event.NewInMemoryStore(event.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := store.Append(ctx, event.StreamID{Type: "dogs", Name: "fido"}, version.Any,
		event.ToEnvelope(&eventtest.Incremented{By: 1}))
	require.NoError(t, err)

	notifications, err := store.ReadNotifications(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, now, notifications[0].RecordedAt)
	assert.Equal(t, version.SequenceNumber(1), notifications[0].SequenceNumber)
}

func TestInMemoryStore_ReadNotificationsUnboundedLimit(t *testing.T) {
	store := event.NewInMemoryStore()
	ctx := context.Background()

	_, err := store.Append(ctx, event.StreamID{Type: "dogs", Name: "fido"}, version.Any,
		event.ToEnvelopes(&eventtest.Incremented{By: 1}, &eventtest.Incremented{By: 2})...)
	require.NoError(t, err)

	notifications, err := store.ReadNotifications(ctx, 2, math.MaxInt)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, version.SequenceNumber(2), notifications[0].SequenceNumber)
}

func TestInMemoryStore_ContextCanceled(t *testing.T) {
	store := event.NewInMemoryStore()
	id := event.StreamID{Type: "dogs", Name: "fido"}

	_, err := store.Append(context.Background(), id, version.Any,
		event.ToEnvelopes(&eventtest.Incremented{By: 1}, &eventtest.Incremented{By: 2})...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered channel with no reader: the store must give up on the canceled context.
	stream := make(chan event.Persisted)
	err = store.Stream(ctx, stream, id, version.SelectFromBeginning)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Append(ctx, id, version.Any, event.ToEnvelope(&eventtest.Incremented{By: 3}))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.ReadNotifications(ctx, 1, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadStream(t *testing.T) {
	ctx := context.Background()
	store := event.NewInMemoryStore()
	id := event.StreamID{Type: "dogs", Name: "fido"}

	events, err := event.ReadStream(ctx, store, id)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = store.Append(ctx, id, version.CheckExact(0),
		event.ToEnvelopes(&eventtest.Incremented{By: 1}, &eventtest.Renamed{To: "rex"})...)
	require.NoError(t, err)

	events, err = event.ReadStream(ctx, store, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, version.Version(1), events[0].Version)
	assert.Equal(t, version.Version(2), events[1].Version)
}

func TestSliceToStream(t *testing.T) {
	events := []event.Persisted{
		{Version: 1, Envelope: event.ToEnvelope(&eventtest.Incremented{By: 1})},
		{Version: 2, Envelope: event.ToEnvelope(&eventtest.Incremented{By: 2})},
	}

	var got []event.Persisted
	for evt := range event.SliceToStream(events) {
		got = append(got, evt)
	}

	assert.Equal(t, events, got)
}

func TestTrackingStore(t *testing.T) {
	ctx := context.Background()
	store := event.NewTrackingStore(event.NewInMemoryStore())
	id := event.StreamID{Type: "dogs", Name: "fido"}

	_, err := store.Append(ctx, id, version.CheckExact(0), event.ToEnvelope(&eventtest.Incremented{By: 1}))
	require.NoError(t, err)

	_, err = store.Append(ctx, id, version.CheckExact(0), event.ToEnvelope(&eventtest.Incremented{By: 2}))
	require.ErrorIs(t, err, version.ErrConflict)

	_, err = store.Append(ctx, id, version.CheckExact(1), event.ToEnvelope(&eventtest.Incremented{By: 3}))
	require.NoError(t, err)

	assert.Equal(t, []event.Persisted{
		{
			StreamID:       id,
			Envelope:       event.ToEnvelope(&eventtest.Incremented{By: 1}),
			Version:        1,
			SequenceNumber: 1,
		},
		{
			StreamID:       id,
			Envelope:       event.ToEnvelope(&eventtest.Incremented{By: 3}),
			Version:        2,
			SequenceNumber: 2,
		},
	}, store.Recorded())
}
