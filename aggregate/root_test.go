package aggregate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/version"
)

func TestRecordThat(t *testing.T) {
	c, err := newCounter("c-1")
	require.NoError(t, err)
	require.NoError(t, c.increment(2))

	assert.Equal(t, version.Version(2), c.Version())
	assert.Equal(t, int64(2), c.Value)

	assert.Equal(t, []event.Envelope{
		event.ToEnvelope(&eventtest.Renamed{To: "c-1"}),
		event.ToEnvelope(&eventtest.Incremented{By: 2}),
	}, c.FlushRecordedEvents())

	assert.Empty(t, c.FlushRecordedEvents(), "flushing twice returns nothing")
	assert.Equal(t, version.Version(2), c.Version(), "flushing does not change the version")

	t.Run("a failed apply records nothing", func(t *testing.T) {
		err := aggregate.RecordThat[aggregate.StringID](c, event.ToEnvelope(&eventtest.Unknown{}))
		require.Error(t, err)

		assert.Empty(t, c.FlushRecordedEvents())
		assert.Equal(t, version.Version(2), c.Version())
	})
}

func TestRehydrateFromEvents(t *testing.T) {
	persisted := func(v version.Version, evt event.Event) event.Persisted {
		return event.Persisted{Envelope: event.ToEnvelope(evt), Version: v}
	}

	t.Run("replay is deterministic", func(t *testing.T) {
		history := []event.Persisted{
			persisted(1, &eventtest.Renamed{To: "c-1"}),
			persisted(2, &eventtest.Incremented{By: 1}),
			persisted(3, &eventtest.Incremented{By: 4}),
		}

		first, second := counterType.Factory(), counterType.Factory()
		require.NoError(t, aggregate.RehydrateFromEvents[aggregate.StringID](first, event.SliceToStream(history)))
		require.NoError(t, aggregate.RehydrateFromEvents[aggregate.StringID](second, event.SliceToStream(history)))

		assert.True(t, first.equal(second))
		assert.Equal(t, version.Version(3), first.Version())
		assert.Equal(t, int64(5), first.Value)
	})

	testCases := []struct {
		name     string
		history  []event.Persisted
		expected version.Version
		actual   version.Version
	}{
		{
			name: "gap",
			history: []event.Persisted{
				persisted(1, &eventtest.Renamed{To: "c-1"}),
				persisted(3, &eventtest.Incremented{By: 1}),
			},
			expected: 2,
			actual:   3,
		},
		{
			name: "duplicate",
			history: []event.Persisted{
				persisted(1, &eventtest.Renamed{To: "c-1"}),
				persisted(1, &eventtest.Incremented{By: 1}),
			},
			expected: 2,
			actual:   1,
		},
		{
			name: "not starting from one",
			history: []event.Persisted{
				persisted(2, &eventtest.Renamed{To: "c-1"}),
			},
			expected: 1,
			actual:   2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := aggregate.RehydrateFromEvents[aggregate.StringID](counterType.Factory(), event.SliceToStream(tc.history))
			require.ErrorIs(t, err, aggregate.ErrVersionMismatch)

			var mismatch *aggregate.VersionMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tc.expected, mismatch.Expected)
			assert.Equal(t, tc.actual, mismatch.Actual)
		})
	}
}

func TestScenario(t *testing.T) {
	t.Run("new counter", func(t *testing.T) {
		aggregate.Scenario(counterType).
			When(func() (*counter, error) { return newCounter("c-1") }).
			Then(event.ToEnvelope(&eventtest.Renamed{To: "c-1"})).
			AssertOn(t)
	})

	t.Run("increment an existing counter", func(t *testing.T) {
		aggregate.Scenario(counterType).
			Given(
				event.ToEnvelope(&eventtest.Renamed{To: "c-1"}),
				event.ToEnvelope(&eventtest.Incremented{By: 1}),
			).
			When(func(c *counter) error { return c.increment(3) }).
			Then(event.ToEnvelope(&eventtest.Incremented{By: 3})).
			AssertOn(t)
	})

	t.Run("invalid increment", func(t *testing.T) {
		aggregate.Scenario(counterType).
			Given(event.ToEnvelope(&eventtest.Renamed{To: "c-1"})).
			When(func(c *counter) error { return c.increment(-1) }).
			ThenError(errNegativeIncrement).
			AssertOn(t)
	})
}
