package postgres

import (
	"time"

	"github.com/go-eventsourcing/eventsourcing/logger"
)

// Option can be used to change the configuration of an object.
type Option[T any] interface {
	apply(T)
}

type option[T any] func(T)

func newOption[T any](f func(T)) option[T] { return option[T](f) }

func (apply option[T]) apply(val T) { apply(val) }

// WithClock sets the clock used to timestamp persisted Domain Events.
func WithClock(clock func() time.Time) Option[*EventStore] {
	return newOption(func(es *EventStore) { es.clock = clock })
}

// WithLogger sets the Logger used by the EventStore.
func WithLogger(l logger.Logger) Option[*EventStore] {
	return newOption(func(es *EventStore) { es.logger = l })
}

// WithSnapshotClock sets the clock used by the SnapshotStore when a
// Snapshot has no recording time.
func WithSnapshotClock(clock func() time.Time) Option[*SnapshotStore] {
	return newOption(func(s *SnapshotStore) { s.clock = clock })
}
