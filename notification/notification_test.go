package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/notification"
	"github.com/go-eventsourcing/eventsourcing/version"
)

func seed(t *testing.T, store event.Store, streams ...string) {
	t.Helper()

	for _, name := range streams {
		_, err := store.Append(context.Background(), event.StreamID{Type: "counter", Name: name}, version.Any,
			event.ToEnvelope(&eventtest.Incremented{By: 1}),
		)
		require.NoError(t, err)
	}
}

func ids(notifications []notification.Notification) []version.SequenceNumber {
	result := make([]version.SequenceNumber, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, n.ID)
	}

	return result
}

func TestLog_Select(t *testing.T) {
	ctx := context.Background()
	store := event.NewInMemoryStore()
	log := notification.NewLog(store, notification.WithMaxLimit(3))

	seed(t, store, "a", "b", "a", "c", "b")

	testCases := []struct {
		name     string
		start    version.SequenceNumber
		limit    int
		expected []version.SequenceNumber
	}{
		{name: "first page", start: 1, limit: 2, expected: []version.SequenceNumber{1, 2}},
		{name: "next page", start: 3, limit: 2, expected: []version.SequenceNumber{3, 4}},
		{name: "last partial page", start: 5, limit: 2, expected: []version.SequenceNumber{5}},
		{name: "past the end", start: 6, limit: 2, expected: []version.SequenceNumber{}},
		{name: "limit capped", start: 1, limit: 100, expected: []version.SequenceNumber{1, 2, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			notifications, err := log.Select(ctx, tc.start, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids(notifications))
		})
	}

	t.Run("notifications carry stream and version", func(t *testing.T) {
		notifications, err := log.Select(ctx, 3, 1)
		require.NoError(t, err)
		require.Len(t, notifications, 1)

		assert.Equal(t, event.StreamID{Type: "counter", Name: "a"}, notifications[0].StreamID)
		assert.Equal(t, version.Version(2), notifications[0].Version)
		assert.Equal(t, &eventtest.Incremented{By: 1}, notifications[0].Envelope.Message)
	})

	t.Run("invalid ranges", func(t *testing.T) {
		_, err := log.Select(ctx, 0, 1)
		assert.ErrorIs(t, err, notification.ErrInvalidRange)

		_, err = log.Select(ctx, 1, 0)
		assert.ErrorIs(t, err, notification.ErrInvalidRange)
	})
}

func TestLog_All(t *testing.T) {
	ctx := context.Background()
	store := event.NewInMemoryStore()
	log := notification.NewLog(store)

	seed(t, store, "a", "b", "c", "d", "e", "f", "g")

	var got []version.SequenceNumber

	for n, err := range log.All(ctx, 2, 3) {
		require.NoError(t, err)

		got = append(got, n.ID)
	}

	assert.Equal(t, []version.SequenceNumber{2, 3, 4, 5, 6, 7}, got)

	t.Run("stopping early", func(t *testing.T) {
		var count int

		for range log.All(ctx, 1, 2) {
			count++
			if count == 3 {
				break
			}
		}

		assert.Equal(t, 3, count)
	})

	t.Run("errors are yielded", func(t *testing.T) {
		errBackend := errors.New("backend down")
		failing := event.FusedStore{NotificationReader: failingReader{err: errBackend}}

		for _, err := range notification.NewLog(failing).All(ctx, 1, 10) {
			require.ErrorIs(t, err, errBackend)
		}
	})
}

func TestLog_Max(t *testing.T) {
	ctx := context.Background()
	store := event.NewInMemoryStore()
	log := notification.NewLog(store)

	latest, err := log.Max(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest)

	seed(t, store, "a", "b")

	latest, err = log.Max(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.SequenceNumber(2), latest)
}

type failingReader struct{ err error }

func (r failingReader) ReadNotifications(context.Context, version.SequenceNumber, int) ([]event.Persisted, error) {
	return nil, r.err
}

func (r failingReader) LatestSequenceNumber(context.Context) (version.SequenceNumber, error) {
	return 0, r.err
}
