package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// ScenarioInit is the entrypoint of the Command Handler scenario API.
//
// A Command Handler scenario can either set the current evaluation context
// by using Given(), or test a "clean-slate" scenario by using When() directly.
type ScenarioInit[Cmd Command, T Handler[Cmd]] struct{}

// Scenario is a scenario type to test the Domain Events recorded
// by a Command Handler when handling a specific Command.
func Scenario[Cmd Command, T Handler[Cmd]]() ScenarioInit[Cmd, T] {
	return ScenarioInit[Cmd, T]{}
}

// Given sets the Domain Events already recorded in the Event Store
// when the Command is handled.
func (sc ScenarioInit[Cmd, T]) Given(events ...event.Persisted) ScenarioGiven[Cmd, T] {
	return ScenarioGiven[Cmd, T]{given: events}
}

// When provides the Command to evaluate.
func (sc ScenarioInit[Cmd, T]) When(cmd Envelope[Cmd]) ScenarioWhen[Cmd, T] {
	return ScenarioWhen[Cmd, T]{
		ScenarioGiven: ScenarioGiven[Cmd, T]{given: nil},
		when:          cmd,
	}
}

// ScenarioGiven is the state of the scenario once the Event Store
// preconditions have been set.
type ScenarioGiven[Cmd Command, T Handler[Cmd]] struct {
	given []event.Persisted
}

// When provides the Command to evaluate.
func (sc ScenarioGiven[Cmd, T]) When(cmd Envelope[Cmd]) ScenarioWhen[Cmd, T] {
	return ScenarioWhen[Cmd, T]{
		ScenarioGiven: sc,
		when:          cmd,
	}
}

// ScenarioWhen is the state of the scenario once the Command
// to evaluate has been provided.
type ScenarioWhen[Cmd Command, T Handler[Cmd]] struct {
	ScenarioGiven[Cmd, T]

	when Envelope[Cmd]
}

// Then expects the Command Handler to record exactly the specified
// Domain Events, in order.
func (sc ScenarioWhen[Cmd, T]) Then(events ...event.Persisted) ScenarioThen[Cmd, T] {
	return ScenarioThen[Cmd, T]{
		ScenarioWhen: sc,
		then:         events,
		thenErrors:   nil,
		wantError:    false,
	}
}

// ThenError expects the Command Handler to fail with an error
// matching all the specified ones, as per errors.Is.
func (sc ScenarioWhen[Cmd, T]) ThenError(errs ...error) ScenarioThen[Cmd, T] {
	return ScenarioThen[Cmd, T]{
		ScenarioWhen: sc,
		then:         nil,
		thenErrors:   errs,
		wantError:    true,
	}
}

// ThenFails expects the Command Handler to fail, with any error.
func (sc ScenarioWhen[Cmd, T]) ThenFails() ScenarioThen[Cmd, T] {
	return sc.ThenError()
}

// ScenarioThen is the state of the scenario once the preconditions
// and expectations have been fully specified.
type ScenarioThen[Cmd Command, T Handler[Cmd]] struct {
	ScenarioWhen[Cmd, T]

	then       []event.Persisted
	thenErrors []error
	wantError  bool
}

// AssertOn runs the scenario with the Command Handler built by the
// factory function, on top of an in-memory Event Store.
//
// Given events are appended in order before the Command is handled,
// so they take the first sequence numbers.
func (sc ScenarioThen[Cmd, T]) AssertOn( //nolint:gocritic
	t *testing.T,
	handlerFactory func(event.Store) T,
) {
	t.Helper()

	ctx := context.Background()
	store := event.NewInMemoryStore()

	for _, evt := range sc.given {
		_, err := store.Append(ctx, evt.StreamID, version.Any, evt.Envelope)
		if !assert.NoError(t, err) {
			return
		}
	}

	trackingStore := event.NewTrackingStore(store)
	handler := handlerFactory(trackingStore)

	err := handler.Handle(ctx, sc.when)

	if !sc.wantError {
		assert.NoError(t, err)

		if len(sc.then) == 0 {
			assert.Empty(t, trackingStore.Recorded())
			return
		}

		assert.Equal(t, sc.then, trackingStore.Recorded())

		return
	}

	if !assert.Error(t, err) {
		return
	}

	for _, expected := range sc.thenErrors {
		assert.ErrorIs(t, err, expected)
	}

	assert.Empty(t, trackingStore.Recorded(), "a failed Command records no Domain Event")
}
