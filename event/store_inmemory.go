package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-eventsourcing/eventsourcing/version"
)

// Interface implementation assertion.
var _ Store = new(InMemoryStore)

// InMemoryStore is a thread-safe, in-memory event.Store implementation.
//
// A single lock serializes all appends, so that version checks, version and
// sequence number assignment happen in the same critical section.
type InMemoryStore struct {
	mx      sync.RWMutex
	log     []Persisted // log[i] has SequenceNumber i+1.
	streams map[StreamID][]int
	clock   func() time.Time
}

// InMemoryStoreOption customizes an InMemoryStore.
type InMemoryStoreOption func(*InMemoryStore)

// WithClock sets the function used to timestamp persisted events.
func WithClock(clock func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) { s.clock = clock }
}

// NewInMemoryStore creates a new event.InMemoryStore instance.
func NewInMemoryStore(opts ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		mx:      sync.RWMutex{},
		log:     nil,
		streams: make(map[StreamID][]int),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("event.InMemoryStore: context error, %w", err)
	}

	return nil
}

// Stream streams committed events in the Event Store onto the provided Stream,
// from the specified version in the selector.
//
// The events are copied out of the store before being sent, so a slow
// consumer does not block concurrent appends.
//
// This method fails only when the context is canceled.
func (es *InMemoryStore) Stream(
	ctx context.Context,
	stream StreamWrite,
	id StreamID,
	selector version.Selector,
) error {
	defer close(stream)

	es.mx.RLock()
	indexes := es.streams[id]
	events := make([]Persisted, 0, len(indexes))

	for _, i := range indexes {
		if evt := es.log[i]; evt.Version >= selector.From {
			events = append(events, evt)
		}
	}
	es.mx.RUnlock()

	for _, evt := range events {
		select {
		case stream <- evt:
		case <-ctx.Done():
			return contextErr(ctx)
		}
	}

	return nil
}

// Append inserts the specified Domain Events into the Event Stream specified
// by the current instance, returning the new version of the Event Stream
// and the sequence numbers assigned to the events.
//
// `version.CheckExact` can be specified to enable an Optimistic Concurrency check
// on append, by using the expected version of the Event Stream prior
// to appending the new Events.
//
// Alternatively, `version.Any` can be used if no Optimistic Concurrency check
// should be carried out.
//
// An instance of `version.ConflictError` will be returned if the optimistic locking
// version check fails against the current version of the Event Stream.
func (es *InMemoryStore) Append(
	ctx context.Context,
	id StreamID,
	expected version.Check,
	events ...Envelope,
) (AppendResult, error) {
	if len(events) == 0 {
		return AppendResult{}, fmt.Errorf("event.InMemoryStore: failed to append events, %w", ErrNoEvents)
	}

	if err := contextErr(ctx); err != nil {
		return AppendResult{}, err
	}

	es.mx.Lock()
	defer es.mx.Unlock()

	currentVersion := version.Version(len(es.streams[id]))

	if v, ok := expected.(version.CheckExact); ok && version.Version(v) != currentVersion {
		return AppendResult{}, fmt.Errorf("event.InMemoryStore: failed to append events, %w", version.ConflictError{
			Expected: version.Version(v),
			Actual:   currentVersion,
		})
	}

	now := es.clock()
	result := AppendResult{
		Version:         currentVersion + version.Version(len(events)),
		SequenceNumbers: make([]version.SequenceNumber, 0, len(events)),
	}

	for i, evt := range events {
		sequenceNumber := version.SequenceNumber(len(es.log) + 1)

		es.streams[id] = append(es.streams[id], len(es.log))
		es.log = append(es.log, Persisted{
			StreamID:       id,
			Envelope:       evt,
			Version:        currentVersion + version.Version(i) + 1,
			SequenceNumber: sequenceNumber,
			RecordedAt:     now,
		})

		result.SequenceNumbers = append(result.SequenceNumbers, sequenceNumber)
	}

	return result, nil
}

// ReadNotifications returns the Domain Events in the global order of the
// Event Store, starting from the specified sequence number.
func (es *InMemoryStore) ReadNotifications(
	ctx context.Context,
	start version.SequenceNumber,
	limit int,
) ([]Persisted, error) {
	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	if start == 0 {
		start = 1
	}

	es.mx.RLock()
	defer es.mx.RUnlock()

	if limit <= 0 || start > version.SequenceNumber(len(es.log)) {
		return nil, nil
	}

	from := int(start - 1)
	to := from + min(limit, len(es.log)-from)

	notifications := make([]Persisted, to-from)
	copy(notifications, es.log[from:to])

	return notifications, nil
}

// LatestSequenceNumber returns the sequence number of the last Domain Event appended.
func (es *InMemoryStore) LatestSequenceNumber(ctx context.Context) (version.SequenceNumber, error) {
	if err := contextErr(ctx); err != nil {
		return 0, err
	}

	es.mx.RLock()
	defer es.mx.RUnlock()

	return version.SequenceNumber(len(es.log)), nil
}
