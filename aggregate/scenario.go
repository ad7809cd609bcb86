package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// ScenarioInit is the entrypoint of the Aggregate Root scenario API.
//
// An Aggregate Root scenario can either set the current evaluation context
// by using Given(), or test a "clean-slate" scenario by using When() directly.
type ScenarioInit[I ID, T Root[I]] struct {
	typ Type[I, T]
}

// Scenario is a scenario type to test the result of methods called
// on an Aggregate Root and their effects.
func Scenario[I ID, T Root[I]](typ Type[I, T]) ScenarioInit[I, T] {
	return ScenarioInit[I, T]{typ: typ}
}

// Given sets the Domain Events that make up the Aggregate Root history
// before the scenario runs. Versions are assigned in order, starting from 1.
func (sc ScenarioInit[I, T]) Given(events ...event.Envelope) ScenarioGiven[I, T] {
	history := make([]event.Persisted, 0, len(events))

	for i, evt := range events {
		history = append(history, event.Persisted{
			StreamID:       event.StreamID{Type: sc.typ.Name, Name: ""},
			Envelope:       evt,
			Version:        version.Version(i + 1), //nolint:gosec // Test histories are small.
			SequenceNumber: 0,
		})
	}

	return ScenarioGiven[I, T]{typ: sc.typ, history: history}
}

// When calls a function that creates a new Aggregate Root instance,
// with no prior history.
func (sc ScenarioInit[I, T]) When(fn func() (T, error)) ScenarioWhen[I, T] {
	return ScenarioWhen[I, T]{fn: fn, base: 0}
}

// ScenarioGiven is the state of the scenario once the Aggregate Root
// history has been set through Given().
type ScenarioGiven[I ID, T Root[I]] struct {
	typ     Type[I, T]
	history []event.Persisted
}

// When calls the Aggregate Root method under test on the instance
// rehydrated from the Given() history.
func (sc ScenarioGiven[I, T]) When(fn func(T) error) ScenarioWhen[I, T] {
	return ScenarioWhen[I, T]{
		base: version.Version(len(sc.history)), //nolint:gosec // Test histories are small.
		fn: func() (T, error) {
			var zeroValue T

			root := sc.typ.Factory()
			if err := RehydrateFromEvents[I](root, event.SliceToStream(sc.history)); err != nil {
				return zeroValue, err
			}

			if err := fn(root); err != nil {
				return zeroValue, err
			}

			return root, nil
		},
	}
}

// ScenarioWhen is the state of the scenario once the method under test
// has been provided. Specify the expected outcome with Then(),
// ThenFails() or ThenError().
type ScenarioWhen[I ID, T Root[I]] struct {
	fn   func() (T, error)
	base version.Version
}

// Then expects the method under test to succeed, recording exactly the
// specified Domain Events. The Aggregate Root version is expected to grow
// by the number of recorded Domain Events.
func (sc ScenarioWhen[I, T]) Then(events ...event.Envelope) ScenarioThen[I, T] {
	return ScenarioThen[I, T]{
		fn:       sc.fn,
		version:  sc.base + version.Version(len(events)), //nolint:gosec // Test histories are small.
		expected: events,
		errs:     nil,
		wantErr:  false,
	}
}

// ThenFails expects the method under test to fail, with any error.
func (sc ScenarioWhen[I, T]) ThenFails() ScenarioThen[I, T] {
	return ScenarioThen[I, T]{fn: sc.fn, version: 0, expected: nil, errs: nil, wantErr: true}
}

// ThenError expects the method under test to fail with an error matching
// all the specified ones, as per errors.Is.
func (sc ScenarioWhen[I, T]) ThenError(errs ...error) ScenarioThen[I, T] {
	return ScenarioThen[I, T]{fn: sc.fn, version: 0, expected: nil, errs: errs, wantErr: true}
}

// ScenarioThen is a fully specified scenario, ready to be run with AssertOn.
type ScenarioThen[I ID, T Root[I]] struct {
	fn       func() (T, error)
	version  version.Version
	expected []event.Envelope
	errs     []error
	wantErr  bool
}

// AssertOn runs the test scenario using the specified testing.T instance.
func (sc ScenarioThen[I, T]) AssertOn(t *testing.T) {
	t.Helper()

	root, err := sc.fn()
	if sc.wantErr {
		assert.Error(t, err)

		for _, expected := range sc.errs {
			assert.ErrorIs(t, err, expected)
		}

		return
	}

	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, sc.expected, root.FlushRecordedEvents())
	assert.Equal(t, sc.version, root.Version())
}
