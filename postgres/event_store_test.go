package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/application"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/internal/dogschool"
	"github.com/go-eventsourcing/eventsourcing/internal/testcontainer"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/postgres"
	"github.com/go-eventsourcing/eventsourcing/version"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainer.NewPostgres(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, testcontainers.TerminateContainer(container))
	})

	require.NoError(t, postgres.RunMigrations(container.DSN))
	require.NoError(t, postgres.RunMigrations(container.DSN), "migrations are idempotent")

	pool, err := container.Pool(ctx)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestEventStore(t *testing.T) {
	pool := setupPool(t)

	t.Run("conformance", func(t *testing.T) {
		suite.Run(t, eventtest.NewStoreSuite(func() event.Store {
			return postgres.NewEventStore(pool, eventtest.Serde, postgres.WithLogger(logger.NewTest(t)))
		}))
	})

	t.Run("dog school", func(t *testing.T) {
		ctx := context.Background()
		store := postgres.NewEventStore(pool, dogschool.EventSerde)

		app, err := application.New(store, dogschool.Namespaces("postgres-dogs"))
		require.NoError(t, err)

		school, err := dogschool.NewSchool(app,
			dogschool.WithSnapshots(postgres.NewSnapshotStore(pool), snapshot.EveryNVersions(2)),
		)
		require.NoError(t, err)

		latest, err := app.Notifications().Max(ctx)
		require.NoError(t, err)

		id, err := school.RegisterDog(ctx, "Fido")
		require.NoError(t, err)
		require.NoError(t, school.AddTrick(ctx, id, "roll over"))
		require.NoError(t, school.AddTrick(ctx, id, "fetch ball"))

		dog, err := school.GetDog(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Fido", dog.Name)
		assert.Equal(t, []string{"roll over", "fetch ball"}, dog.Tricks)

		notifications, err := school.SelectNotifications(ctx, latest+1, 10)
		require.NoError(t, err)
		require.Len(t, notifications, 3)

		for i, n := range notifications {
			assert.Equal(t, latest+1+version.SequenceNumber(i), n.ID)
		}
	})
}

func TestSnapshotStore(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	store := postgres.NewSnapshotStore(pool)
	id := event.StreamID{Type: "counter", Name: "c-1"}

	_, err := store.Get(ctx, id)
	require.ErrorIs(t, err, snapshot.ErrNotFound)

	require.NoError(t, store.Record(ctx, id, snapshot.Snapshot{Version: 3, State: []byte(`{"value":3}`)}))
	require.NoError(t, store.Record(ctx, id, snapshot.Snapshot{Version: 2, State: []byte(`{"value":2}`)}))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Version)
	assert.Equal(t, []byte(`{"value":3}`), got.State)
	assert.False(t, got.RecordedAt.IsZero())
}
