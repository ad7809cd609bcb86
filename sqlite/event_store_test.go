package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/application"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/internal/dogschool"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/sqlite"
	"github.com/go-eventsourcing/eventsourcing/version"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})

	return db
}

func TestEventStore(t *testing.T) {
	db := openDB(t)

	suite.Run(t, eventtest.NewStoreSuite(func() event.Store {
		return sqlite.NewEventStore(db, eventtest.Serde, sqlite.WithLogger(logger.NewTest(t)))
	}))
}

func TestEventStore_SerializationError(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewEventStore(openDB(t), eventtest.Serde)
	id := event.StreamID{Type: "counter", Name: "c-1"}

	_, err := store.Append(ctx, id, version.CheckExact(0), event.ToEnvelope(&eventtest.Unknown{}))
	require.ErrorIs(t, err, serde.ErrUnknownMessage)
	assert.NotErrorIs(t, err, event.ErrStorageUnavailable)

	latest, err := store.LatestSequenceNumber(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestOpen(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := sqlite.Open(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("reopening an existing database keeps its events", func(t *testing.T) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "events.db")
		id := event.StreamID{Type: "counter", Name: "c-1"}

		db, err := sqlite.Open(ctx, path)
		require.NoError(t, err)

		_, err = sqlite.NewEventStore(db, eventtest.Serde).
			Append(ctx, id, version.CheckExact(0), event.ToEnvelope(&eventtest.Incremented{By: 1}))
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db, err = sqlite.Open(ctx, path)
		require.NoError(t, err)

		defer db.Close()

		events, err := event.ReadStream(ctx, sqlite.NewEventStore(db, eventtest.Serde), id)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, &eventtest.Incremented{By: 1}, events[0].Message)
	})
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewSnapshotStore(openDB(t))
	id := event.StreamID{Type: "counter", Name: "c-1"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := store.Get(ctx, id)
	require.ErrorIs(t, err, snapshot.ErrNotFound)

	require.NoError(t, store.Record(ctx, id, snapshot.Snapshot{Version: 3, State: []byte(`{"value":3}`), RecordedAt: now}))
	require.NoError(t, store.Record(ctx, id, snapshot.Snapshot{Version: 2, State: []byte(`{"value":2}`), RecordedAt: now}))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Snapshot{Version: 3, State: []byte(`{"value":3}`), RecordedAt: now}, got)
}

func TestDogSchool(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	app, err := application.New(sqlite.NewEventStore(db, dogschool.EventSerde), dogschool.Namespaces(dogschool.DefaultNamespace))
	require.NoError(t, err)

	school, err := dogschool.NewSchool(app,
		dogschool.WithSnapshots(sqlite.NewSnapshotStore(db), snapshot.EveryNVersions(2)),
	)
	require.NoError(t, err)

	fido, err := school.RegisterDog(ctx, "Fido")
	require.NoError(t, err)

	require.NoError(t, school.AddTrick(ctx, fido, "roll over"))
	require.NoError(t, school.AddTrick(ctx, fido, "fetch ball"))
	require.NoError(t, school.AddTrick(ctx, fido, "play dead"))

	dog, err := school.GetDog(ctx, fido)
	require.NoError(t, err)
	assert.Equal(t, "Fido", dog.Name)
	assert.Equal(t, []string{"roll over", "fetch ball", "play dead"}, dog.Tricks)
	assert.EqualValues(t, 4, dog.Version)

	notifications, err := school.SelectNotifications(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 4)

	for i, n := range notifications {
		assert.EqualValues(t, i+1, n.ID)
	}
}
