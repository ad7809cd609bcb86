package event

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/go-eventsourcing/eventsourcing/version"
)

// Stream represents a stream of persisted Domain Events coming from some
// stream-able source of data, like an Event Store.
type Stream = chan Persisted

// StreamWrite provides write-only access to an event.Stream object.
type StreamWrite chan<- Persisted

// StreamRead provides read-only access to an event.Stream object.
type StreamRead <-chan Persisted

// SliceToStream converts a slice of event.Persisted domain events to an event.Stream type.
//
// The channel returned by the function contains all the input slice elements
// and has already been closed.
func SliceToStream(events []Persisted) StreamRead {
	ch := make(chan Persisted, len(events))
	defer close(ch)

	for _, event := range events {
		ch <- event
	}

	return ch
}

// StreamToSlice synchronously exhausts a Stream to an event.Persisted slice,
// and returns an error if the Stream origin, passed here as a closure,
// fails with an error.
func StreamToSlice(ctx context.Context, f func(ctx context.Context, stream StreamWrite) error) ([]Persisted, error) {
	ch := make(chan Persisted, 1)
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return f(ctx, ch) })

	var events []Persisted
	for event := range ch {
		events = append(events, event)
	}

	return events, group.Wait()
}

// ReadStream returns all the Domain Events persisted in the specified
// Event Stream, ordered by version. An empty slice is returned if
// the Event Stream has no events.
func ReadStream(ctx context.Context, streamer Streamer, id StreamID) ([]Persisted, error) {
	events, err := StreamToSlice(ctx, func(ctx context.Context, stream StreamWrite) error {
		return streamer.Stream(ctx, stream, id, version.SelectFromBeginning)
	})
	if err != nil {
		return nil, fmt.Errorf("event.ReadStream: failed to read event stream %s, %w", id, err)
	}

	return events, nil
}

// Streamer is an Event Store trait used to open a specific Event Stream and stream it back
// in the application.
type Streamer interface {
	// Stream sends the Domain Events of the Event Stream id, starting
	// from the selector version, in ascending version order.
	//
	// Implementations must close the stream channel once done, also on error.
	Stream(ctx context.Context, stream StreamWrite, id StreamID, selector version.Selector) error
}

// AppendResult is returned by an Appender after a successful append.
type AppendResult struct {
	// Version is the new version of the Event Stream.
	Version version.Version

	// SequenceNumbers are the notification ids assigned to the appended
	// Domain Events, in the same order they were provided.
	SequenceNumbers []version.SequenceNumber
}

// Appender is an Event Store trait used to append new Domain Events in the Event Stream.
type Appender interface {
	// Append atomically appends the Domain Events to the Event Stream id,
	// after verifying the expected version of the Event Stream.
	//
	// A version.ConflictError is returned when the version check fails.
	// All the events get persisted, or none do.
	Append(ctx context.Context, id StreamID, expected version.Check, events ...Envelope) (AppendResult, error)
}

// NotificationReader is an Event Store trait used to read all the persisted Domain Events
// following their global order.
type NotificationReader interface {
	// ReadNotifications returns at most limit Domain Events with a sequence
	// number greater or equal to start, in ascending sequence number order.
	ReadNotifications(ctx context.Context, start version.SequenceNumber, limit int) ([]Persisted, error)

	// LatestSequenceNumber returns the highest sequence number assigned,
	// or 0 if the Event Store is empty.
	LatestSequenceNumber(ctx context.Context) (version.SequenceNumber, error)
}

// Store represents an Event Store, a stateful data source where Domain Events
// can be safely stored, and easily replayed.
type Store interface {
	Appender
	Streamer
	NotificationReader
}

// FusedStore is a convenience type to fuse
// multiple Event Store interfaces where you might need to extend
// the functionality of the Store only partially.
//
// E.g. You might want to extend the functionality of the Append() method,
// but keep the Streamer methods the same.
type FusedStore struct {
	Appender
	Streamer
	NotificationReader
}
