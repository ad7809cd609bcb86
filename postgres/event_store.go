// Package postgres contains the Event Store and the Snapshot Store
// implementations targeting PostgreSQL, built on top of pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/postgres/internal"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var _ event.Store = new(EventStore)

// EventStore is an event.Store implementation targeted to PostgreSQL databases.
//
// The implementation uses the "event_streams", "events" and "notification_sequence"
// tables, created by RunMigrations.
//
// Appends run in a single READ COMMITTED transaction that locks the Event
// Stream row first, and the notification sequence counter row last, right
// before inserting the Domain Events and committing. Transactions thus commit
// in the same order they take their sequence numbers, and readers never
// observe gaps in the notification feed.
type EventStore struct {
	pool   *pgxpool.Pool
	serde  serde.Bytes[message.Message]
	clock  func() time.Time
	logger logger.Logger
}

// NewEventStore returns a new EventStore using the specified connection pool,
// and the serde to (de)serialize Domain Events payloads.
func NewEventStore(pool *pgxpool.Pool, messageSerde serde.Bytes[message.Message], opts ...Option[*EventStore]) *EventStore {
	es := &EventStore{
		pool:   pool,
		serde:  messageSerde,
		clock:  time.Now,
		logger: nil,
	}

	for _, opt := range opts {
		opt.apply(es)
	}

	return es
}

// Stream implements the event.Streamer interface.
func (es *EventStore) Stream(
	ctx context.Context,
	stream event.StreamWrite,
	id event.StreamID,
	selector version.Selector,
) error {
	defer close(stream)

	rows, err := es.pool.Query(ctx,
		`SELECT sequence_number, version, payload, metadata, recorded_at FROM events
		WHERE stream_type = $1 AND stream_name = $2 AND version >= $3
		ORDER BY version`,
		id.Type, id.Name, int64(selector.From),
	)
	if err != nil {
		return event.StorageError("postgres.EventStore.Stream", "failed to query events", err)
	}

	defer rows.Close()

	for rows.Next() {
		evt, err := es.scanEvent(rows, id)
		if err != nil {
			return err
		}

		select {
		case stream <- evt:
		case <-ctx.Done():
			return fmt.Errorf("postgres.EventStore.Stream: context error, %w", ctx.Err())
		}
	}

	if err := rows.Err(); err != nil {
		return event.StorageError("postgres.EventStore.Stream", "failed to read events", err)
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

	rows, err := es.pool.Query(ctx,
		`SELECT stream_type, stream_name, sequence_number, version, payload, metadata, recorded_at FROM events
		WHERE sequence_number >= $1
		ORDER BY sequence_number
		LIMIT $2`,
		int64(start), limit, //nolint:gosec // Sequence numbers fit int64.
	)
	if err != nil {
		return nil, event.StorageError("postgres.EventStore.ReadNotifications", "failed to query events", err)
	}

	defer rows.Close()

	var notifications []event.Persisted

	for rows.Next() {
		var id event.StreamID

		evt, err := es.scanEvent(rows, id, &id.Type, &id.Name)
		if err != nil {
			return nil, err
		}

		evt.StreamID = id
		notifications = append(notifications, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, event.StorageError("postgres.EventStore.ReadNotifications", "failed to read events", err)
	}

	return notifications, nil
}

// LatestSequenceNumber implements the event.NotificationReader interface.
func (es *EventStore) LatestSequenceNumber(ctx context.Context) (version.SequenceNumber, error) {
	var latest int64
	if err := es.pool.QueryRow(ctx, `SELECT last_id FROM notification_sequence`).Scan(&latest); err != nil {
		return 0, event.StorageError("postgres.EventStore.LatestSequenceNumber", "failed to read sequence", err)
	}

	return version.SequenceNumber(latest), nil //nolint:gosec // Checked positive by the schema.
}

func (es *EventStore) scanEvent(rows pgx.Rows, id event.StreamID, prefix ...any) (event.Persisted, error) {
	var (
		sequenceNumber, eventVersion int64
		payload, rawMetadata         []byte
		recordedAt                   time.Time
	)

	dest := append(prefix, &sequenceNumber, &eventVersion, &payload, &rawMetadata, &recordedAt)
	if err := rows.Scan(dest...); err != nil {
		return event.Persisted{}, event.StorageError("postgres.EventStore", "failed to scan event row", err)
	}

	msg, err := es.serde.Deserialize(payload)
	if err != nil {
		return event.Persisted{}, fmt.Errorf("postgres.EventStore: failed to deserialize event, %w", err)
	}

	var metadata message.Metadata
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &metadata); err != nil {
			return event.Persisted{}, fmt.Errorf("postgres.EventStore: failed to deserialize metadata, %w", err)
		}
	}

	return event.Persisted{
		StreamID:       id,
		Envelope:       event.Envelope{Message: msg, Metadata: metadata},
		Version:        version.Version(eventVersion),          //nolint:gosec // Checked positive by the schema.
		SequenceNumber: version.SequenceNumber(sequenceNumber), //nolint:gosec // Checked positive by the schema.
		RecordedAt:     recordedAt,
	}, nil
}

type encodedEvent struct {
	name     string
	payload  []byte
	metadata []byte
}

func (es *EventStore) encode(events []event.Envelope) ([]encodedEvent, error) {
	encoded := make([]encodedEvent, 0, len(events))

	for _, evt := range events {
		payload, err := es.serde.Serialize(evt.Message)
		if err != nil {
			return nil, fmt.Errorf("postgres.EventStore.Append: failed to serialize event, %w", err)
		}

		var metadata []byte

		if len(evt.Metadata) > 0 {
			if metadata, err = json.Marshal(evt.Metadata); err != nil {
				return nil, fmt.Errorf("postgres.EventStore.Append: failed to serialize metadata, %w", err)
			}
		}

		encoded = append(encoded, encodedEvent{name: evt.Message.Name(), payload: payload, metadata: metadata})
	}

	return encoded, nil
}

// Append implements the event.Appender interface.
func (es *EventStore) Append(
	ctx context.Context,
	id event.StreamID,
	expected version.Check,
	events ...event.Envelope,
) (event.AppendResult, error) {
	if len(events) == 0 {
		return event.AppendResult{}, fmt.Errorf("postgres.EventStore.Append: %w", event.ErrNoEvents)
	}

	encoded, err := es.encode(events)
	if err != nil {
		return event.AppendResult{}, err
	}

	var result event.AppendResult

	txOptions := pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.NotDeferrable,
	}

	err = internal.RunTransaction(ctx, es.pool, txOptions, func(ctx context.Context, tx pgx.Tx) error {
		result, err = es.appendInTx(ctx, tx, id, expected, encoded)
		return err
	})

	var conflict version.ConflictError

	switch {
	case err == nil:
	case errors.As(err, &conflict):
		return event.AppendResult{}, fmt.Errorf("postgres.EventStore.Append: %w", conflict)
	case isUniqueViolation(err):
		// A concurrent writer committed at least one event at the same
		// version, the exact current version is unknown here.
		return event.AppendResult{}, fmt.Errorf("postgres.EventStore.Append: %w", version.ConflictError{
			Expected: expectedVersion(expected),
			Actual:   expectedVersion(expected) + 1,
		})
	case ctx.Err() != nil:
		return event.AppendResult{}, fmt.Errorf("postgres.EventStore.Append: context error, %w", err)
	default:
		return event.AppendResult{}, event.StorageError("postgres.EventStore.Append", "failed to append events", err)
	}

	logger.Debug(es.logger, "Domain Events appended",
		logger.With("stream", id.String()),
		logger.With("version", result.Version),
		logger.With("sequence_numbers", result.SequenceNumbers),
	)

	return result, nil
}

func (es *EventStore) appendInTx(
	ctx context.Context,
	tx pgx.Tx,
	id event.StreamID,
	expected version.Check,
	events []encodedEvent,
) (event.AppendResult, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO event_streams (stream_type, stream_name, version) VALUES ($1, $2, 0)
		ON CONFLICT (stream_type, stream_name) DO NOTHING`,
		id.Type, id.Name,
	); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to create event stream, %w", err)
	}

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT version FROM event_streams WHERE stream_type = $1 AND stream_name = $2 FOR UPDATE`,
		id.Type, id.Name,
	).Scan(&current); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to lock event stream, %w", err)
	}

	currentVersion := version.Version(current) //nolint:gosec // Checked positive by the schema.

	if v, ok := expected.(version.CheckExact); ok && version.Version(v) != currentVersion {
		return event.AppendResult{}, version.ConflictError{
			Expected: version.Version(v),
			Actual:   currentVersion,
		}
	}

	newVersion := currentVersion + version.Version(len(events)) //nolint:gosec // Batches are small.

	if _, err := tx.Exec(ctx,
		`UPDATE event_streams SET version = $3 WHERE stream_type = $1 AND stream_name = $2`,
		id.Type, id.Name, int64(newVersion),
	); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to update event stream version, %w", err)
	}

	// The sequence row lock is held from here until commit.
	var lastID int64
	if err := tx.QueryRow(ctx,
		`UPDATE notification_sequence SET last_id = last_id + $1 RETURNING last_id`,
		len(events),
	).Scan(&lastID); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to assign sequence numbers, %w", err)
	}

	firstID := lastID - int64(len(events)) + 1
	recordedAt := es.clock()
	batch := new(pgx.Batch)

	result := event.AppendResult{
		Version:         newVersion,
		SequenceNumbers: make([]version.SequenceNumber, 0, len(events)),
	}

	for i, evt := range events {
		sequenceNumber := firstID + int64(i)

		batch.Queue(
			`INSERT INTO events (sequence_number, stream_type, stream_name, version, name, payload, metadata, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sequenceNumber, id.Type, id.Name, current+int64(i)+1, evt.name, evt.payload, evt.metadata, recordedAt,
		)

		result.SequenceNumbers = append(result.SequenceNumbers, version.SequenceNumber(sequenceNumber)) //nolint:gosec,lll // Positive.
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to insert events, %w", err)
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func expectedVersion(check version.Check) version.Version {
	if v, ok := check.(version.CheckExact); ok {
		return version.Version(v)
	}

	return 0
}
