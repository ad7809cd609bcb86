// Package notification exposes the global, gap-free order of every
// Domain Event persisted in an Event Store as a read-only feed of
// Notifications, paged by contiguous id ranges.
//
// Readers page forward by asking for start = last received id + 1.
// There is no push mechanism: the feed is pull-only.
package notification

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// DefaultMaxLimit is the maximum number of Notifications returned
// by a single Select call, unless configured otherwise.
const DefaultMaxLimit = 1000

// ErrInvalidRange is returned when a Notification range starts before 1,
// or asks for less than one Notification.
var ErrInvalidRange = errors.New("notification: invalid range")

// Notification is a persisted Domain Event annotated with its position
// in the global order of the Event Store.
type Notification struct {
	// ID is the position in the global order, starting from 1.
	ID version.SequenceNumber

	StreamID   event.StreamID
	Version    version.Version
	RecordedAt time.Time
	Envelope   event.Envelope
}

// FromPersisted converts a persisted Domain Event into a Notification.
func FromPersisted(evt event.Persisted) Notification {
	return Notification{
		ID:         evt.SequenceNumber,
		StreamID:   evt.StreamID,
		Version:    evt.Version,
		RecordedAt: evt.RecordedAt,
		Envelope:   evt.Envelope,
	}
}

// Option customizes a Log.
type Option func(*Log)

// WithMaxLimit caps the number of Notifications returned by Select.
// Non-positive values are ignored.
func WithMaxLimit(limit int) Option {
	return func(l *Log) {
		if limit > 0 {
			l.maxLimit = limit
		}
	}
}

// Log is the Notification Log of an Event Store.
type Log struct {
	reader   event.NotificationReader
	maxLimit int
}

// NewLog returns a Log reading from the specified event.NotificationReader.
func NewLog(reader event.NotificationReader, opts ...Option) *Log {
	l := &Log{
		reader:   reader,
		maxLimit: DefaultMaxLimit,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// MaxLimit returns the maximum number of Notifications a Select call returns.
func (l *Log) MaxLimit() int { return l.maxLimit }

// Select returns the Notifications with id >= start, in ascending id order,
// and at most limit of them (capped to MaxLimit).
//
// The result is empty if start is past the last assigned id.
// ErrInvalidRange is returned if start < 1 or limit < 1.
func (l *Log) Select(ctx context.Context, start version.SequenceNumber, limit int) ([]Notification, error) {
	if start < 1 || limit < 1 {
		return nil, fmt.Errorf("notification.Log.Select: start %d, limit %d, %w", start, limit, ErrInvalidRange)
	}

	events, err := l.reader.ReadNotifications(ctx, start, min(limit, l.maxLimit))
	if err != nil {
		return nil, fmt.Errorf("notification.Log.Select: failed to read notifications, %w", err)
	}

	notifications := make([]Notification, 0, len(events))
	for _, evt := range events {
		notifications = append(notifications, FromPersisted(evt))
	}

	return notifications, nil
}

// All iterates over every Notification with id >= start, reading pages of
// pageSize Notifications, until a page comes back empty.
//
// Iteration stops at the first error, which is yielded with a zero Notification.
func (l *Log) All(ctx context.Context, start version.SequenceNumber, pageSize int) iter.Seq2[Notification, error] {
	return func(yield func(Notification, error) bool) {
		for {
			page, err := l.Select(ctx, start, pageSize)
			if err != nil {
				yield(Notification{}, err)
				return
			}

			if len(page) == 0 {
				return
			}

			for _, n := range page {
				if !yield(n, nil) {
					return
				}
			}

			start = page[len(page)-1].ID + 1
		}
	}
}

// Max returns the highest id assigned so far, or 0 if nothing
// has been persisted yet.
func (l *Log) Max(ctx context.Context) (version.SequenceNumber, error) {
	latest, err := l.reader.LatestSequenceNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("notification.Log.Max: failed to read latest id, %w", err)
	}

	return latest, nil
}
