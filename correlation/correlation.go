// Package correlation enriches Domain Events with correlation metadata:
// a unique event id, the id of the request that caused them and the id
// correlating the whole chain of requests.
package correlation

import (
	"context"

	"github.com/go-eventsourcing/eventsourcing/message"
)

// Metadata keys used to record the correlation data.
const (
	EventIDKey       = "Event-Id"
	CorrelationIDKey = "Correlation-Id"
	CausationIDKey   = "Causation-Id"
)

type (
	correlationCtxKey struct{}
	causationCtxKey   struct{}
	metadataCtxKey    struct{}
)

// WithMetadata returns a context carrying metadata to record in every
// Domain Event appended through an EventStore. Metadata already in the
// context is merged, the new values taking precedence.
func WithMetadata(ctx context.Context, metadata message.Metadata) context.Context {
	current, _ := ctx.Value(metadataCtxKey{}).(message.Metadata)
	return context.WithValue(ctx, metadataCtxKey{}, current.Merge(metadata))
}

// WithCorrelationID returns a context carrying the specified correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationCtxKey{}, id)
}

// WithCausationID returns a context carrying the specified causation id.
func WithCausationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, causationCtxKey{}, id)
}

func fromContext(ctx context.Context, key any) string {
	id, _ := ctx.Value(key).(string)
	return id
}

// Metadata gives access to the correlation data in message.Metadata.
type Metadata message.Metadata

func (m Metadata) get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok && v != ""
}

// EventID returns the unique id of the Domain Event.
func (m Metadata) EventID() (string, bool) { return m.get(EventIDKey) }

// CorrelationID returns the id correlating the Domain Event to the others
// recorded in the same chain of requests.
func (m Metadata) CorrelationID() (string, bool) { return m.get(CorrelationIDKey) }

// CausationID returns the id of the request that caused the Domain Event.
func (m Metadata) CausationID() (string, bool) { return m.get(CausationIDKey) }
