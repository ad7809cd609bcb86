package mongodb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/internal/testcontainer"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/mongodb"
)

func TestEventStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainer.NewMongoDB(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, testcontainers.TerminateContainer(container))
	})

	client, err := container.Client(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, client.Disconnect(context.Background()))
	})

	store := mongodb.NewEventStore(client, "eventsourcing", eventtest.Serde)

	latest, err := store.LatestSequenceNumber(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest, "the sequence starts from zero before Init")

	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx), "Init is idempotent")

	suite.Run(t, eventtest.NewStoreSuite(func() event.Store {
		return mongodb.NewEventStore(client, "eventsourcing", eventtest.Serde, mongodb.WithLogger(logger.NewTest(t)))
	}))
}
