// Package event contains the types describing Domain Events, before and
// after they get persisted, and the interfaces of the Event Store
// that durably records them.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// Event is a Message representing some Domain information that has happened
// in the past, which is of vital information to the Domain itself.
//
// Event type names should be phrased in the past tense, to enforce the notion
// of "information happened in the past".
type Event message.Message

// Envelope contains a Domain Event and possible metadata associated to it.
type Envelope message.GenericEnvelope

// ToEnvelope returns an Envelope instance with the provided Domain Event
// instance, and no metadata attached.
func ToEnvelope(event Event) Envelope {
	return Envelope{
		Message:  event,
		Metadata: nil,
	}
}

// ToEnvelopes returns a list of Envelopes from a list of Domain Events.
func ToEnvelopes(events ...Event) []Envelope {
	envelopes := make([]Envelope, 0, len(events))

	for _, event := range events {
		envelopes = append(envelopes, ToEnvelope(event))
	}

	return envelopes
}

// StreamID represents the unique identifier for an Event Stream.
type StreamID struct {
	// Type is the storage namespace of the Event Stream. Usually this is
	// the namespace configured for the Aggregate type.
	Type string

	// Name is the name of the Event Stream inside its namespace.
	// Usually, this is the string representation of the Aggregate id.
	Name string
}

func (id StreamID) String() string {
	return id.Type + "/" + id.Name
}

// Persisted represents a Domain Event that has been persisted into the Event Store.
type Persisted struct {
	StreamID
	Envelope

	// Version is the position of the Domain Event in its Event Stream,
	// starting from 1.
	Version version.Version

	// SequenceNumber is the position of the Domain Event in the whole
	// Event Store, starting from 1.
	SequenceNumber version.SequenceNumber

	// RecordedAt is the time the Domain Event was persisted at.
	// It is purely informational.
	RecordedAt time.Time
}

var (
	// ErrStorageUnavailable is returned, together with the original cause,
	// when the durability layer of an Event Store fails. An operation
	// failing with this error has not taken effect.
	ErrStorageUnavailable = errors.New("event: storage unavailable")

	// ErrNoEvents is returned by Event Stores when appending an empty list of events.
	ErrNoEvents = errors.New("event: no events to append")
)

// StorageError wraps the cause of a durability layer failure so that
// it matches ErrStorageUnavailable, while still exposing the original error.
func StorageError(component, msg string, cause error) error {
	return fmt.Errorf("%s: %s, %w: %w", component, msg, ErrStorageUnavailable, cause)
}
