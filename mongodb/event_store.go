// Package mongodb contains an event.Store implementation backed by MongoDB.
//
// Appends run in multi-document transactions, which require the server
// to be part of a replica set.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// Collection names used by the EventStore.
const (
	EventStreamsCollection = "event_streams"
	EventsCollection       = "events"
	SequencesCollection    = "sequences"

	notificationsSequence = "notifications"
)

var _ event.Store = new(EventStore)

// EventStore is an event.Store implementation using MongoDB.
//
// Every append updates the Event Stream document and the notification
// sequence counter document in the same transaction. Concurrent transactions
// writing the counter fail with a write conflict and are retried, so sequence
// numbers are committed in order and without gaps.
//
// Call Init before using the EventStore.
type EventStore struct {
	client   *mongo.Client
	database string
	serde    serde.Bytes[message.Message]
	clock    func() time.Time
	logger   logger.Logger
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

// NewEventStore returns a new EventStore using the specified client and
// database, and the serde to (de)serialize Domain Events payloads.
func NewEventStore(
	client *mongo.Client,
	database string,
	messageSerde serde.Bytes[message.Message],
	opts ...Option,
) *EventStore {
	es := &EventStore{
		client:   client,
		database: database,
		serde:    messageSerde,
		clock:    time.Now,
		logger:   nil,
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

type eventStreamDocument struct {
	ID      string `bson:"_id"`
	Type    string `bson:"stream_type"`
	Name    string `bson:"stream_name"`
	Version int64  `bson:"version"`
}

type eventDocument struct {
	SequenceNumber int64             `bson:"_id"`
	StreamType     string            `bson:"stream_type"`
	StreamName     string            `bson:"stream_name"`
	Version        int64             `bson:"version"`
	Name           string            `bson:"name"`
	Payload        []byte            `bson:"payload"`
	Metadata       map[string]string `bson:"metadata,omitempty"`
	RecordedAt     time.Time         `bson:"recorded_at"`
}

type sequenceDocument struct {
	ID     string `bson:"_id"`
	LastID int64  `bson:"last_id"`
}

func (es *EventStore) db() *mongo.Database {
	return es.client.Database(es.database, options.Database().
		SetReadConcern(readconcern.Majority()).
		SetReadPreference(readpref.Primary()).
		SetWriteConcern(writeconcern.Majority()),
	)
}

func (es *EventStore) events() *mongo.Collection { return es.db().Collection(EventsCollection) }

func (es *EventStore) streams() *mongo.Collection { return es.db().Collection(EventStreamsCollection) }

func (es *EventStore) sequences() *mongo.Collection { return es.db().Collection(SequencesCollection) }

func streamDocumentID(id event.StreamID) string {
	return id.String()
}

// Init creates the indexes used by the EventStore, and the notification
// sequence counter. It is safe to call Init multiple times.
func (es *EventStore) Init(ctx context.Context) error {
	_, err := es.events().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "stream_type", Value: 1},
			{Key: "stream_name", Value: 1},
			{Key: "version", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("stream_version"),
	})
	if err != nil {
		return event.StorageError("mongodb.EventStore.Init", "failed to create events index", err)
	}

	_, err = es.sequences().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: notificationsSequence}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "last_id", Value: int64(0)}}}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return event.StorageError("mongodb.EventStore.Init", "failed to create notification sequence", err)
	}

	return nil
}

func (es *EventStore) toPersisted(doc eventDocument) (event.Persisted, error) {
	msg, err := es.serde.Deserialize(doc.Payload)
	if err != nil {
		return event.Persisted{}, fmt.Errorf("mongodb.EventStore: failed to deserialize event, %w", err)
	}

	var metadata message.Metadata
	if len(doc.Metadata) > 0 {
		metadata = message.Metadata(doc.Metadata)
	}

	return event.Persisted{
		StreamID:       event.StreamID{Type: doc.StreamType, Name: doc.StreamName},
		Envelope:       event.Envelope{Message: msg, Metadata: metadata},
		Version:        version.Version(doc.Version),                //nolint:gosec // Always positive.
		SequenceNumber: version.SequenceNumber(doc.SequenceNumber), //nolint:gosec // Always positive.
		RecordedAt:     doc.RecordedAt.UTC(),
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

	cursor, err := es.events().Find(ctx,
		bson.D{
			{Key: "stream_type", Value: id.Type},
			{Key: "stream_name", Value: id.Name},
			{Key: "version", Value: bson.D{{Key: "$gte", Value: int64(selector.From)}}}, //nolint:gosec // Versions fit int64.
		},
		options.Find().SetSort(bson.D{{Key: "version", Value: 1}}),
	)
	if err != nil {
		return event.StorageError("mongodb.EventStore.Stream", "failed to open event stream cursor", err)
	}

	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc eventDocument
		if err := cursor.Decode(&doc); err != nil {
			return event.StorageError("mongodb.EventStore.Stream", "failed to decode event document", err)
		}

		evt, err := es.toPersisted(doc)
		if err != nil {
			return err
		}

		select {
		case stream <- evt:
		case <-ctx.Done():
			return fmt.Errorf("mongodb.EventStore.Stream: context error, %w", ctx.Err())
		}
	}

	if err := cursor.Err(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("mongodb.EventStore.Stream: context error, %w", ctx.Err())
		}

		return event.StorageError("mongodb.EventStore.Stream", "failed while iterating the cursor", err)
	}

	return nil
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

	cursor, err := es.events().Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$gte", Value: int64(start)}}}}, //nolint:gosec // Sequence numbers fit int64.
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, event.StorageError("mongodb.EventStore.ReadNotifications", "failed to query events", err)
	}

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, event.StorageError("mongodb.EventStore.ReadNotifications", "failed to decode events", err)
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
	var sequence sequenceDocument

	err := es.sequences().FindOne(ctx, bson.D{{Key: "_id", Value: notificationsSequence}}).Decode(&sequence)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}

	if err != nil {
		return 0, event.StorageError("mongodb.EventStore.LatestSequenceNumber", "failed to read sequence", err)
	}

	return version.SequenceNumber(sequence.LastID), nil //nolint:gosec // Always positive.
}

// Append implements the event.Appender interface.
func (es *EventStore) Append(
	ctx context.Context,
	id event.StreamID,
	expected version.Check,
	events ...event.Envelope,
) (event.AppendResult, error) {
	if len(events) == 0 {
		return event.AppendResult{}, fmt.Errorf("mongodb.EventStore.Append: %w", event.ErrNoEvents)
	}

	documents := make([]eventDocument, 0, len(events))

	for _, evt := range events {
		payload, err := es.serde.Serialize(evt.Message)
		if err != nil {
			return event.AppendResult{}, fmt.Errorf("mongodb.EventStore.Append: failed to serialize event, %w", err)
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

	session, err := es.client.StartSession(options.Session().
		SetDefaultReadConcern(readconcern.Snapshot()).
		SetDefaultWriteConcern(writeconcern.Majority()),
	)
	if err != nil {
		return event.AppendResult{}, event.StorageError("mongodb.EventStore.Append", "failed to start session", err)
	}

	defer session.EndSession(ctx)

	var result event.AppendResult

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		var err error

		result, err = es.appendInTx(sessCtx, id, expected, documents)

		return nil, err
	})

	var conflict version.ConflictError

	switch {
	case err == nil:
	case errors.As(err, &conflict):
		return event.AppendResult{}, fmt.Errorf("mongodb.EventStore.Append: %w", conflict)
	case mongo.IsDuplicateKeyError(err):
		// A concurrent writer committed the same versions first.
		return event.AppendResult{}, fmt.Errorf("mongodb.EventStore.Append: %w", version.ConflictError{
			Expected: expectedVersion(expected),
			Actual:   expectedVersion(expected) + 1,
		})
	case ctx.Err() != nil:
		return event.AppendResult{}, fmt.Errorf("mongodb.EventStore.Append: context error, %w", err)
	default:
		return event.AppendResult{}, event.StorageError("mongodb.EventStore.Append", "failed to commit transaction", err)
	}

	logger.Debug(es.logger, "Domain Events appended",
		logger.With("stream", id.String()),
		logger.With("version", result.Version),
		logger.With("sequence_numbers", result.SequenceNumbers),
	)

	return result, nil
}

func (es *EventStore) appendInTx(
	ctx mongo.SessionContext,
	id event.StreamID,
	expected version.Check,
	documents []eventDocument,
) (event.AppendResult, error) {
	var stream eventStreamDocument

	err := es.streams().FindOne(ctx, bson.D{{Key: "_id", Value: streamDocumentID(id)}}).Decode(&stream)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return event.AppendResult{}, fmt.Errorf("failed to find event stream, %w", err)
	}

	currentVersion := version.Version(stream.Version) //nolint:gosec // Always positive.

	if v, ok := expected.(version.CheckExact); ok && version.Version(v) != currentVersion {
		return event.AppendResult{}, version.ConflictError{
			Expected: version.Version(v),
			Actual:   currentVersion,
		}
	}

	count := int64(len(documents))

	if _, err := es.streams().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: streamDocumentID(id)}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "stream_type", Value: id.Type},
			{Key: "stream_name", Value: id.Name},
			{Key: "version", Value: stream.Version + count},
		}}},
		options.Update().SetUpsert(true),
	); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to update event stream, %w", err)
	}

	var sequence sequenceDocument

	if err := es.sequences().FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: notificationsSequence}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "last_id", Value: count}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&sequence); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to assign sequence numbers, %w", err)
	}

	recordedAt := es.clock().UTC()
	inserts := make([]any, 0, len(documents))
	result := event.AppendResult{
		Version:         currentVersion + version.Version(count), //nolint:gosec // Always positive.
		SequenceNumbers: make([]version.SequenceNumber, 0, len(documents)),
	}

	for i, doc := range documents {
		doc.SequenceNumber = sequence.LastID - count + int64(i) + 1
		doc.Version = stream.Version + int64(i) + 1
		doc.RecordedAt = recordedAt

		inserts = append(inserts, doc)
		result.SequenceNumbers = append(result.SequenceNumbers, version.SequenceNumber(doc.SequenceNumber)) //nolint:gosec,lll // Positive.
	}

	if _, err := es.events().InsertMany(ctx, inserts); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to insert events, %w", err)
	}

	return result, nil
}

func expectedVersion(check version.Check) version.Version {
	if v, ok := check.(version.CheckExact); ok {
		return version.Version(v)
	}

	return 0
}
