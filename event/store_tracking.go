package event

import (
	"context"
	"sync"

	"github.com/go-eventsourcing/eventsourcing/version"
)

// TrackingStore is an Event Store wrapper to track the Events
// committed to the inner Event Store.
//
// Useful for tests assertion.
type TrackingStore struct {
	Store

	mx       sync.RWMutex
	recorded []Persisted
}

// NewTrackingStore wraps an Event Store to capture events that get
// appended to it.
func NewTrackingStore(store Store) *TrackingStore {
	return &TrackingStore{Store: store}
}

// Recorded returns the list of Events that have been appended
// to the Event Store, in the order they were committed.
//
// The RecordedAt field of the returned events is not set.
func (es *TrackingStore) Recorded() []Persisted {
	es.mx.RLock()
	defer es.mx.RUnlock()

	recorded := make([]Persisted, len(es.recorded))
	copy(recorded, es.recorded)

	return recorded
}

// Append forwards the call to the wrapped Event Store instance and,
// if the operation concludes successfully, records these events internally.
//
// The recorded events can be accessed by calling Recorded().
func (es *TrackingStore) Append(
	ctx context.Context,
	id StreamID,
	expected version.Check,
	events ...Envelope,
) (AppendResult, error) {
	es.mx.Lock()
	defer es.mx.Unlock()

	result, err := es.Store.Append(ctx, id, expected, events...)
	if err != nil {
		return result, err
	}

	previousVersion := result.Version - version.Version(len(events))

	for i, evt := range events {
		es.recorded = append(es.recorded, Persisted{
			StreamID:       id,
			Envelope:       evt,
			Version:        previousVersion + version.Version(i) + 1,
			SequenceNumber: result.SequenceNumbers[i],
		})
	}

	return result, nil
}
