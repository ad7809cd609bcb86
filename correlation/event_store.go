package correlation

import (
	"context"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// Generator returns new unique ids.
type Generator func() string

var _ event.Store = EventStore{}

// EventStore is an event.Store wrapper that records correlation data
// in the metadata of every appended Domain Event.
//
// Metadata set with WithMetadata is recorded too, unless the Domain Event
// carries a value for the same key.
// Correlation and causation ids are taken from the context, if present.
// Otherwise a new id is generated for the append, and used for both.
type EventStore struct {
	event.Store

	Generator Generator
}

// WrapEventStore returns an EventStore decorating the specified one.
func WrapEventStore(store event.Store, generator Generator) EventStore {
	return EventStore{Store: store, Generator: generator}
}

// Append implements the event.Appender interface.
func (es EventStore) Append(
	ctx context.Context,
	id event.StreamID,
	expected version.Check,
	events ...event.Envelope,
) (event.AppendResult, error) {
	causeID := es.Generator()

	correlationID := fromContext(ctx, correlationCtxKey{})
	if correlationID == "" {
		correlationID = causeID
	}

	causationID := fromContext(ctx, causationCtxKey{})
	if causationID == "" {
		causationID = causeID
	}

	contextMetadata, _ := ctx.Value(metadataCtxKey{}).(message.Metadata)
	enriched := make([]event.Envelope, 0, len(events))

	for _, evt := range events {
		evt.Metadata = contextMetadata.Merge(evt.Metadata).
			With(EventIDKey, es.Generator()).
			With(CorrelationIDKey, correlationID).
			With(CausationIDKey, causationID)

		enriched = append(enriched, evt)
	}

	return es.Store.Append(ctx, id, expected, enriched...)
}
