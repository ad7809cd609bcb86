package dogschool_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/internal/dogschool"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var now = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func TestDog_ReplayEqualsOriginal(t *testing.T) {
	id := uuid.New()

	dog, err := dogschool.Register(id, "Fido", now)
	require.NoError(t, err)

	assert.Equal(t, id, dog.AggregateID())
	assert.Equal(t, "Fido", dog.Name())
	assert.Empty(t, dog.Tricks())

	require.NoError(t, dog.AddTrick("roll over", now))
	assert.Equal(t, []string{"roll over"}, dog.Tricks())

	events := dog.FlushRecordedEvents()
	require.Len(t, events, 2)

	persisted := make([]event.Persisted, 0, len(events))
	for i, evt := range events {
		persisted = append(persisted, event.Persisted{Envelope: evt, Version: version.Version(i + 1)})
	}

	replayed := dogschool.Type.Factory()
	require.NoError(t, aggregate.RehydrateFromEvents[uuid.UUID](replayed, event.SliceToStream(persisted)))

	assert.True(t, replayed.Equal(dog))
	assert.Equal(t, "Fido", replayed.Name())
	assert.Equal(t, []string{"roll over"}, replayed.Tricks())
	assert.Equal(t, version.Version(2), replayed.Version())
}

func TestDog_Scenarios(t *testing.T) {
	id := uuid.New()

	t.Run("register a dog", func(t *testing.T) {
		aggregate.Scenario(dogschool.Type).
			When(func() (*dogschool.Dog, error) { return dogschool.Register(id, "Fido", now) }).
			Then(event.ToEnvelope(&dogschool.Registered{DogID: id, DogName: "Fido", OccurredAt: now})).
			AssertOn(t)
	})

	t.Run("a dog needs a name", func(t *testing.T) {
		aggregate.Scenario(dogschool.Type).
			When(func() (*dogschool.Dog, error) { return dogschool.Register(id, "", now) }).
			ThenError(dogschool.ErrEmptyName).
			AssertOn(t)
	})

	t.Run("a dog needs an id", func(t *testing.T) {
		aggregate.Scenario(dogschool.Type).
			When(func() (*dogschool.Dog, error) { return dogschool.Register(uuid.Nil, "Fido", now) }).
			ThenError(dogschool.ErrNilID).
			AssertOn(t)
	})

	t.Run("teach a trick", func(t *testing.T) {
		aggregate.Scenario(dogschool.Type).
			Given(
				event.ToEnvelope(&dogschool.Registered{DogID: id, DogName: "Fido", OccurredAt: now}),
				event.ToEnvelope(&dogschool.TrickAdded{Trick: "roll over", OccurredAt: now}),
			).
			When(func(dog *dogschool.Dog) error { return dog.AddTrick("fetch ball", now) }).
			Then(event.ToEnvelope(&dogschool.TrickAdded{Trick: "fetch ball", OccurredAt: now})).
			AssertOn(t)
	})

	t.Run("empty tricks are refused", func(t *testing.T) {
		aggregate.Scenario(dogschool.Type).
			Given(event.ToEnvelope(&dogschool.Registered{DogID: id, DogName: "Fido", OccurredAt: now})).
			When(func(dog *dogschool.Dog) error { return dog.AddTrick("", now) }).
			ThenError(dogschool.ErrEmptyTrick).
			AssertOn(t)
	})
}

func TestDog_Equal(t *testing.T) {
	id := uuid.New()

	fido, err := dogschool.Register(id, "Fido", now)
	require.NoError(t, err)

	twin, err := dogschool.Register(id, "Fido", now.Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, fido.Equal(twin), "timestamps are not part of the state")

	require.NoError(t, twin.AddTrick("sit", now))
	assert.False(t, fido.Equal(twin))

	other, err := dogschool.Register(uuid.New(), "Fido", now)
	require.NoError(t, err)
	assert.False(t, fido.Equal(other))

	assert.False(t, fido.Equal(nil))
}

func TestDog_UnknownEvent(t *testing.T) {
	dog := dogschool.Type.Factory()

	err := dog.Apply(&otherEvent{})
	assert.Error(t, err)
}

func TestDog_TrickBeforeRegistration(t *testing.T) {
	history := []event.Persisted{{
		Envelope: event.ToEnvelope(&dogschool.TrickAdded{Trick: "sit", OccurredAt: now}),
		Version:  1,
	}}

	dog := dogschool.Type.Factory()
	err := aggregate.RehydrateFromEvents[uuid.UUID](dog, event.SliceToStream(history))
	require.ErrorIs(t, err, dogschool.ErrNotRegistered)
	assert.Equal(t, uuid.Nil, dog.AggregateID())
}

type otherEvent struct{}

func (*otherEvent) Name() string { return "OtherEvent" }

func TestSerde(t *testing.T) {
	id := uuid.New()

	t.Run("events", func(t *testing.T) {
		for _, evt := range []event.Event{
			&dogschool.Registered{DogID: id, DogName: "Fido", OccurredAt: now},
			&dogschool.TrickAdded{Trick: "roll over", OccurredAt: now},
		} {
			data, err := dogschool.EventSerde.Serialize(evt)
			require.NoError(t, err)

			got, err := dogschool.EventSerde.Deserialize(data)
			require.NoError(t, err)
			assert.Equal(t, evt, got)
		}
	})

	t.Run("snapshots", func(t *testing.T) {
		dog, err := dogschool.Register(id, "Fido", now)
		require.NoError(t, err)
		require.NoError(t, dog.AddTrick("roll over", now))

		data, err := dogschool.SnapshotSerde.Serialize(dog)
		require.NoError(t, err)

		restored, err := aggregate.RehydrateFromState[uuid.UUID](dog.Version(), data, dogschool.SnapshotSerde)
		require.NoError(t, err)
		assert.True(t, restored.Equal(dog))
	})
}
