// Package aggregate contains the types to model Event-sourced Aggregate Roots,
// and the Repository that rebuilds them from, and saves them to, an Event Store.
package aggregate

import (
	"fmt"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// ID represents an Aggregate ID type.
//
// Aggregate IDs should be able to be marshaled into a string format,
// in order to be saved onto a named Event Stream.
type ID interface {
	fmt.Stringer
}

// StringID is a string-typed Aggregate ID.
type StringID string

func (id StringID) String() string { return string(id) }

// Aggregate is the segregated interface, part of the Aggregate Root interface,
// that describes the left-folding behavior of Domain Events to update the
// Aggregate Root state.
type Aggregate interface {
	// Apply applies the specified Event to the Aggregate Root,
	// by causing a state change in the Aggregate Root instance.
	//
	// Since this method cause a state change, implementors should make sure
	// to use pointer semantics on their Aggregate Root method receivers.
	//
	// Apply must be a pure function of the current state and the Event:
	// no external requests, no clocks, no randomness. Every Event kind
	// of the Aggregate must be handled; unknown kinds are an error.
	Apply(event.Event) error
}

// Internal contains the Aggregate Root methods used by Repositories.
type Internal interface {
	// FlushRecordedEvents drains and returns the Domain Events recorded
	// since the last flush. Subsequent calls return no events until
	// new ones get recorded.
	FlushRecordedEvents() []event.Envelope
}

// Root is the interface describing an Aggregate Root instance.
//
// This interface should be implemented by your Aggregate Root types.
// Make sure your Aggregate Root types embed the aggregate.BaseRoot type
// to complete the implementation of this interface.
type Root[I ID] interface {
	Aggregate
	Internal

	// AggregateID returns the Aggregate Root identifier.
	AggregateID() I

	// Version returns the current Aggregate Root version, which is the
	// number of Domain Events applied to it so far.
	Version() version.Version

	setVersion(version.Version)
	recordThat(Aggregate, ...event.Envelope) error
}

// Type represents the type of an Aggregate, which will expose the
// name of the Aggregate and a factory for empty instances.
//
// If your Aggregate implementation uses pointers, use the factory to
// return a non-nil instance of the type.
type Type[I ID, T Root[I]] struct {
	Name    string
	Factory func() T
}

// RecordThat records the Domain Event for the specified Aggregate Root.
//
// The Domain Event is applied to the Aggregate Root right away, and then
// added to the recorded events, so that the Aggregate Root state and its
// uncommitted events never diverge.
//
// An error is returned if applying the Domain Event fails, in which case
// the Domain Event is not recorded.
func RecordThat[I ID](root Root[I], events ...event.Envelope) error {
	return root.recordThat(root, events...)
}

// BaseRoot segregates and completes the aggregate.Root interface implementation
// when embedded to a user-defined Aggregate Root type.
//
// BaseRoot provides some common traits, such as tracking the current Aggregate
// Root version, and the recorded-but-uncommitted Domain Events, through
// the aggregate.RecordThat function.
//
// BaseRoot is not safe for concurrent use.
type BaseRoot struct {
	version        version.Version
	recordedEvents []event.Envelope
}

// Version returns the current version of the Aggregate Root instance.
func (br BaseRoot) Version() version.Version { return br.version }

// FlushRecordedEvents implements aggregate.Internal.
func (br *BaseRoot) FlushRecordedEvents() []event.Envelope {
	flushed := br.recordedEvents
	br.recordedEvents = nil

	return flushed
}

func (br *BaseRoot) setVersion(v version.Version) {
	br.version = v
}

func (br *BaseRoot) recordThat(aggregate Aggregate, events ...event.Envelope) error {
	for _, evt := range events {
		if err := aggregate.Apply(evt.Message); err != nil {
			return fmt.Errorf("aggregate.RecordThat: failed to record event, %w", err)
		}

		br.recordedEvents = append(br.recordedEvents, evt)
		br.version++
	}

	return nil
}
