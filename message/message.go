// Package message exposes the generic Message type, used to represent
// a message in a system (e.g. Event, Command, Query).
package message

// Message is a Message payload.
//
// Each payload should have a unique name identifier, that can be used
// to uniquely route a message to its type. For Domain Events the name
// is the discriminator of the event kind.
type Message interface {
	Name() string
}

// Metadata contains some data related to a Message that are not functional
// for the Message itself, but instead functioning as supporting information
// to provide additional context.
//
// Metadata values are treated as immutable: With and Merge always return
// a new map, leaving the receiver untouched.
type Metadata map[string]string

func (m Metadata) clone(extra int) Metadata {
	cloned := make(Metadata, len(m)+extra)
	for k, v := range m {
		cloned[k] = v
	}

	return cloned
}

// With returns a new Metadata holding the value addressed using
// the specified key, together with all the current entries.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.clone(1)
	cloned[key] = value

	return cloned
}

// Merge returns a new Metadata containing the current entries
// overridden by the ones in other.
func (m Metadata) Merge(other Metadata) Metadata {
	if len(other) == 0 {
		return m
	}

	merged := m.clone(len(other))
	for k, v := range other {
		merged[k] = v
	}

	return merged
}

// GenericEnvelope is an Envelope type that can be used when the concrete
// Message type in the Envelope is not of interest.
type GenericEnvelope Envelope[Message]

// Envelope bundles a Message to be exchanged with optional Metadata support.
type Envelope[T Message] struct {
	Message  T
	Metadata Metadata
}

// ToGenericEnvelope maps the Envelope instance into a GenericEnvelope one.
func (e Envelope[T]) ToGenericEnvelope() GenericEnvelope {
	return GenericEnvelope{
		Message:  e.Message,
		Metadata: e.Metadata,
	}
}
