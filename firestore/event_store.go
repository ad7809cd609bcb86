// Package firestore contains an event.Store implementation backed by
// Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	firestoreapi "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// Collection names used by the EventStore.
const (
	EventStreamsCollection = "EventStreams"
	EventsCollection       = "Events"
	SequencesCollection    = "Sequences"

	notificationsSequence = "notifications"

	// DefaultMaxAttempts is the number of times an append transaction
	// is attempted when contended.
	DefaultMaxAttempts = 20
)

var _ event.Store = new(EventStore)

// EventStore is an event.Store implementation using Firestore.
//
// Each append runs in a Firestore transaction that reads the Event Stream
// document and the notification sequence counter document, and then writes
// both together with the new Domain Events. Firestore serializes transactions
// touching the same documents, so sequence numbers are committed in order
// and without gaps.
//
// Stream queries filter on stream type, stream name and version: a composite
// index on these fields is required outside the emulator.
type EventStore struct {
	client      *firestoreapi.Client
	serde       serde.Bytes[message.Message]
	clock       func() time.Time
	logger      logger.Logger
	maxAttempts int
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithClock sets the clock used to timestamp persisted Domain Events.
func WithClock(clock func() time.Time) Option {
	return func(es *EventStore) { es.clock = clock }
}

// WithLogger sets the Logger used by the EventStore.
func WithLogger(l logger.Logger) Option {
	return func(es *EventStore) { es.logger = l }
}

// WithMaxAttempts sets how many times an append transaction is attempted
// before giving up, when aborted by concurrent writers.
func WithMaxAttempts(n int) Option {
	return func(es *EventStore) { es.maxAttempts = n }
}

// NewEventStore returns a new EventStore using the specified client,
// and the serde to (de)serialize Domain Events payloads.
func NewEventStore(client *firestoreapi.Client, messageSerde serde.Bytes[message.Message], opts ...Option) *EventStore {
	es := &EventStore{
		client:      client,
		serde:       messageSerde,
		clock:       time.Now,
		logger:      nil,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

type eventStreamDocument struct {
	Type    string `firestore:"stream_type"`
	Name    string `firestore:"stream_name"`
	Version int64  `firestore:"version"`
}

type eventDocument struct {
	SequenceNumber int64             `firestore:"sequence_number"`
	StreamType     string            `firestore:"stream_type"`
	StreamName     string            `firestore:"stream_name"`
	Version        int64             `firestore:"version"`
	Name           string            `firestore:"name"`
	Payload        []byte            `firestore:"payload"`
	Metadata       map[string]string `firestore:"metadata,omitempty"`
	RecordedAt     time.Time         `firestore:"recorded_at"`
}

type sequenceDocument struct {
	LastID int64 `firestore:"last_id"`
}

func streamDocumentID(id event.StreamID) string {
	return url.PathEscape(id.Type) + "@" + url.PathEscape(id.Name)
}

func eventDocumentID(sequenceNumber int64) string {
	return fmt.Sprintf("%020d", sequenceNumber)
}

func (es *EventStore) sequenceRef() *firestoreapi.DocumentRef {
	return es.client.Collection(SequencesCollection).Doc(notificationsSequence)
}

func (es *EventStore) toPersisted(doc *firestoreapi.DocumentSnapshot) (event.Persisted, error) {
	var data eventDocument
	if err := doc.DataTo(&data); err != nil {
		return event.Persisted{}, event.StorageError("firestore.EventStore", "failed to decode event document", err)
	}

	msg, err := es.serde.Deserialize(data.Payload)
	if err != nil {
		return event.Persisted{}, fmt.Errorf("firestore.EventStore: failed to deserialize event, %w", err)
	}

	var metadata message.Metadata
	if len(data.Metadata) > 0 {
		metadata = message.Metadata(data.Metadata)
	}

	return event.Persisted{
		StreamID:       event.StreamID{Type: data.StreamType, Name: data.StreamName},
		Envelope:       event.Envelope{Message: msg, Metadata: metadata},
		Version:        version.Version(data.Version),                //nolint:gosec // Always positive.
		SequenceNumber: version.SequenceNumber(data.SequenceNumber), //nolint:gosec // Always positive.
		RecordedAt:     data.RecordedAt,
	}, nil
}

// Stream implements the event.Streamer interface.
func (es *EventStore) Stream(
	ctx context.Context,
	stream event.StreamWrite,
	id event.StreamID,
	selector version.Selector,
) error {
	defer close(stream)

	docs := es.client.Collection(EventsCollection).
		Where("stream_type", "==", id.Type).
		Where("stream_name", "==", id.Name).
		Where("version", ">=", int64(selector.From)). //nolint:gosec // Versions fit int64.
		OrderBy("version", firestoreapi.Asc).
		Documents(ctx)

	defer docs.Stop()

	for {
		doc, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("firestore.EventStore.Stream: context error, %w", ctx.Err())
			}

			return event.StorageError("firestore.EventStore.Stream", "failed to read events", err)
		}

		evt, err := es.toPersisted(doc)
		if err != nil {
			return err
		}

		select {
		case stream <- evt:
		case <-ctx.Done():
			return fmt.Errorf("firestore.EventStore.Stream: context error, %w", ctx.Err())
		}
	}
}

// ReadNotifications implements the event.NotificationReader interface.
func (es *EventStore) ReadNotifications(
	ctx context.Context,
	start version.SequenceNumber,
	limit int,
) ([]event.Persisted, error) {
	if limit <= 0 {
		return nil, nil
	}

	docs, err := es.client.Collection(EventsCollection).
		Where("sequence_number", ">=", int64(start)). //nolint:gosec // Sequence numbers fit int64.
		OrderBy("sequence_number", firestoreapi.Asc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, event.StorageError("firestore.EventStore.ReadNotifications", "failed to query events", err)
	}

	notifications := make([]event.Persisted, 0, len(docs))

	for _, doc := range docs {
		evt, err := es.toPersisted(doc)
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, evt)
	}

	return notifications, nil
}

// LatestSequenceNumber implements the event.NotificationReader interface.
func (es *EventStore) LatestSequenceNumber(ctx context.Context) (version.SequenceNumber, error) {
	doc, err := es.sequenceRef().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}

	if err != nil {
		return 0, event.StorageError("firestore.EventStore.LatestSequenceNumber", "failed to read sequence", err)
	}

	var sequence sequenceDocument
	if err := doc.DataTo(&sequence); err != nil {
		return 0, event.StorageError("firestore.EventStore.LatestSequenceNumber", "failed to decode sequence", err)
	}

	return version.SequenceNumber(sequence.LastID), nil //nolint:gosec // Always positive.
}

func (es *EventStore) encode(id event.StreamID, events []event.Envelope) ([]eventDocument, error) {
	documents := make([]eventDocument, 0, len(events))

	for _, evt := range events {
		payload, err := es.serde.Serialize(evt.Message)
		if err != nil {
			return nil, fmt.Errorf("firestore.EventStore.Append: failed to serialize event, %w", err)
		}

		documents = append(documents, eventDocument{
			SequenceNumber: 0,
			StreamType:     id.Type,
			StreamName:     id.Name,
			Version:        0,
			Name:           evt.Message.Name(),
			Payload:        payload,
			Metadata:       evt.Metadata,
			RecordedAt:     time.Time{},
		})
	}

	return documents, nil
}

// Append implements the event.Appender interface.
func (es *EventStore) Append(
	ctx context.Context,
	id event.StreamID,
	expected version.Check,
	events ...event.Envelope,
) (event.AppendResult, error) {
	if len(events) == 0 {
		return event.AppendResult{}, fmt.Errorf("firestore.EventStore.Append: %w", event.ErrNoEvents)
	}

	documents, err := es.encode(id, events)
	if err != nil {
		return event.AppendResult{}, err
	}

	var result event.AppendResult

	err = es.client.RunTransaction(ctx, func(_ context.Context, tx *firestoreapi.Transaction) error {
		result, err = es.appendInTx(tx, id, expected, documents)
		return err
	}, firestoreapi.MaxAttempts(es.maxAttempts))

	var conflict version.ConflictError

	switch {
	case err == nil:
	case errors.As(err, &conflict):
		return event.AppendResult{}, fmt.Errorf("firestore.EventStore.Append: %w", conflict)
	case ctx.Err() != nil:
		return event.AppendResult{}, fmt.Errorf("firestore.EventStore.Append: context error, %w", err)
	default:
		return event.AppendResult{}, event.StorageError("firestore.EventStore.Append", "failed to commit transaction", err)
	}

	logger.Debug(es.logger, "Domain Events appended",
		logger.With("stream", id.String()),
		logger.With("version", result.Version),
		logger.With("sequence_numbers", result.SequenceNumbers),
	)

	return result, nil
}

// appendInTx performs all the transaction reads before any write,
// as required by Firestore.
func (es *EventStore) appendInTx(
	tx *firestoreapi.Transaction,
	id event.StreamID,
	expected version.Check,
	documents []eventDocument,
) (event.AppendResult, error) {
	streamRef := es.client.Collection(EventStreamsCollection).Doc(streamDocumentID(id))
	sequenceRef := es.sequenceRef()

	var stream eventStreamDocument
	if err := getInTx(tx, streamRef, &stream); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to get event stream, %w", err)
	}

	var sequence sequenceDocument
	if err := getInTx(tx, sequenceRef, &sequence); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to get notification sequence, %w", err)
	}

	currentVersion := version.Version(stream.Version) //nolint:gosec // Always positive.

	if v, ok := expected.(version.CheckExact); ok && version.Version(v) != currentVersion {
		return event.AppendResult{}, version.ConflictError{
			Expected: version.Version(v),
			Actual:   currentVersion,
		}
	}

	count := int64(len(documents))

	if err := tx.Set(streamRef, eventStreamDocument{
		Type:    id.Type,
		Name:    id.Name,
		Version: stream.Version + count,
	}); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to update event stream, %w", err)
	}

	if err := tx.Set(sequenceRef, sequenceDocument{LastID: sequence.LastID + count}); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to update notification sequence, %w", err)
	}

	recordedAt := es.clock()
	result := event.AppendResult{
		Version:         currentVersion + version.Version(count), //nolint:gosec // Always positive.
		SequenceNumbers: make([]version.SequenceNumber, 0, len(documents)),
	}

	for i, doc := range documents {
		doc.SequenceNumber = sequence.LastID + int64(i) + 1
		doc.Version = stream.Version + int64(i) + 1
		doc.RecordedAt = recordedAt

		ref := es.client.Collection(EventsCollection).Doc(eventDocumentID(doc.SequenceNumber))
		if err := tx.Create(ref, doc); err != nil {
			return event.AppendResult{}, fmt.Errorf("failed to create event document, %w", err)
		}

		result.SequenceNumbers = append(result.SequenceNumbers, version.SequenceNumber(doc.SequenceNumber)) //nolint:gosec,lll // Positive.
	}

	return result, nil
}

// getInTx reads the document into dst, leaving dst untouched
// if the document does not exist.
func getInTx(tx *firestoreapi.Transaction, ref *firestoreapi.DocumentRef, dst any) error {
	doc, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil
	}

	if err != nil {
		return err
	}

	if err := doc.DataTo(dst); err != nil {
		return fmt.Errorf("failed to decode document, %w", err)
	}

	return nil
}
