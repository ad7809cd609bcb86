package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var _ event.Store = new(EventStore)

// EventStore is an event.Store implementation targeted to SQLite databases
// opened with Open.
//
// SQLite allows a single writer at a time: appends hold the database write
// lock from the version check until commit, so sequence numbers are
// assigned and committed in order.
type EventStore struct {
	db     *sql.DB
	serde  serde.Bytes[message.Message]
	clock  func() time.Time
	logger logger.Logger
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

// NewEventStore returns a new EventStore using the specified database,
// and the serde to (de)serialize Domain Events payloads.
func NewEventStore(db *sql.DB, messageSerde serde.Bytes[message.Message], opts ...Option) *EventStore {
	es := &EventStore{
		db:     db,
		serde:  messageSerde,
		clock:  time.Now,
		logger: nil,
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

type scanner interface {
	Scan(dest ...any) error
}

func (es *EventStore) scanEvent(row scanner) (event.Persisted, error) {
	var (
		id                           event.StreamID
		sequenceNumber, eventVersion int64
		recordedAt                   int64
		payload                      []byte
		rawMetadata                  sql.NullString
	)

	if err := row.Scan(&id.Type, &id.Name, &sequenceNumber, &eventVersion, &payload, &rawMetadata, &recordedAt); err != nil {
		return event.Persisted{}, event.StorageError("sqlite.EventStore", "failed to scan event row", err)
	}

	msg, err := es.serde.Deserialize(payload)
	if err != nil {
		return event.Persisted{}, fmt.Errorf("sqlite.EventStore: failed to deserialize event, %w", err)
	}

	var metadata message.Metadata
	if rawMetadata.Valid && rawMetadata.String != "" {
		if err := json.Unmarshal([]byte(rawMetadata.String), &metadata); err != nil {
			return event.Persisted{}, fmt.Errorf("sqlite.EventStore: failed to deserialize metadata, %w", err)
		}
	}

	return event.Persisted{
		StreamID:       id,
		Envelope:       event.Envelope{Message: msg, Metadata: metadata},
		Version:        version.Version(eventVersion),          //nolint:gosec // Checked positive by the schema.
		SequenceNumber: version.SequenceNumber(sequenceNumber), //nolint:gosec // Checked positive by the schema.
		RecordedAt:     fromNanos(recordedAt),
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

	rows, err := es.db.QueryContext(ctx,
		`SELECT stream_type, stream_name, sequence_number, version, payload, metadata, recorded_at FROM events
		WHERE stream_type = ? AND stream_name = ? AND version >= ?
		ORDER BY version`,
		id.Type, id.Name, int64(selector.From), //nolint:gosec // Versions fit int64.
	)
	if err != nil {
		return event.StorageError("sqlite.EventStore.Stream", "failed to query events", err)
	}

	defer rows.Close()

	for rows.Next() {
		evt, err := es.scanEvent(rows)
		if err != nil {
			return err
		}

		select {
		case stream <- evt:
		case <-ctx.Done():
			return fmt.Errorf("sqlite.EventStore.Stream: context error, %w", ctx.Err())
		}
	}

	if err := rows.Err(); err != nil {
		return event.StorageError("sqlite.EventStore.Stream", "failed to read events", err)
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

	rows, err := es.db.QueryContext(ctx,
		`SELECT stream_type, stream_name, sequence_number, version, payload, metadata, recorded_at FROM events
		WHERE sequence_number >= ?
		ORDER BY sequence_number
		LIMIT ?`,
		int64(start), limit, //nolint:gosec // Sequence numbers fit int64.
	)
	if err != nil {
		return nil, event.StorageError("sqlite.EventStore.ReadNotifications", "failed to query events", err)
	}

	defer rows.Close()

	var notifications []event.Persisted

	for rows.Next() {
		evt, err := es.scanEvent(rows)
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, event.StorageError("sqlite.EventStore.ReadNotifications", "failed to read events", err)
	}

	return notifications, nil
}

// LatestSequenceNumber implements the event.NotificationReader interface.
func (es *EventStore) LatestSequenceNumber(ctx context.Context) (version.SequenceNumber, error) {
	var latest int64
	if err := es.db.QueryRowContext(ctx, `SELECT last_id FROM notification_sequence WHERE id = 1`).Scan(&latest); err != nil {
		return 0, event.StorageError("sqlite.EventStore.LatestSequenceNumber", "failed to read sequence", err)
	}

	return version.SequenceNumber(latest), nil //nolint:gosec // Checked positive by the schema.
}

type encodedEvent struct {
	name     string
	payload  []byte
	metadata sql.NullString
}

func (es *EventStore) encode(events []event.Envelope) ([]encodedEvent, error) {
	encoded := make([]encodedEvent, 0, len(events))

	for _, evt := range events {
		payload, err := es.serde.Serialize(evt.Message)
		if err != nil {
			return nil, fmt.Errorf("sqlite.EventStore.Append: failed to serialize event, %w", err)
		}

		var metadata sql.NullString

		if len(evt.Metadata) > 0 {
			raw, err := json.Marshal(evt.Metadata)
			if err != nil {
				return nil, fmt.Errorf("sqlite.EventStore.Append: failed to serialize metadata, %w", err)
			}

			metadata = sql.NullString{String: string(raw), Valid: true}
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
		return event.AppendResult{}, fmt.Errorf("sqlite.EventStore.Append: %w", event.ErrNoEvents)
	}

	encoded, err := es.encode(events)
	if err != nil {
		return event.AppendResult{}, err
	}

	var result event.AppendResult

	err = runTransaction(ctx, es.db, func(tx *sql.Tx) error {
		var err error

		result, err = es.appendInTx(ctx, tx, id, expected, encoded)

		return err
	})

	var conflict version.ConflictError

	switch {
	case err == nil:
	case errors.As(err, &conflict):
		return event.AppendResult{}, fmt.Errorf("sqlite.EventStore.Append: %w", conflict)
	case isConstraintError(err):
		return event.AppendResult{}, fmt.Errorf("sqlite.EventStore.Append: %w", version.ConflictError{
			Expected: expectedVersion(expected),
			Actual:   expectedVersion(expected) + 1,
		})
	case ctx.Err() != nil:
		return event.AppendResult{}, fmt.Errorf("sqlite.EventStore.Append: context error, %w", err)
	default:
		return event.AppendResult{}, event.StorageError("sqlite.EventStore.Append", "failed to append events", err)
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
	tx *sql.Tx,
	id event.StreamID,
	expected version.Check,
	events []encodedEvent,
) (event.AppendResult, error) {
	var current int64

	err := tx.QueryRowContext(ctx,
		`SELECT version FROM event_streams WHERE stream_type = ? AND stream_name = ?`,
		id.Type, id.Name,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return event.AppendResult{}, fmt.Errorf("failed to read event stream version, %w", err)
	}

	currentVersion := version.Version(current) //nolint:gosec // Checked positive by the schema.

	if v, ok := expected.(version.CheckExact); ok && version.Version(v) != currentVersion {
		return event.AppendResult{}, version.ConflictError{
			Expected: version.Version(v),
			Actual:   currentVersion,
		}
	}

	count := int64(len(events))

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_streams (stream_type, stream_name, version) VALUES (?, ?, ?)
		ON CONFLICT (stream_type, stream_name) DO UPDATE SET version = excluded.version`,
		id.Type, id.Name, current+count,
	); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to update event stream version, %w", err)
	}

	var lastID int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE notification_sequence SET last_id = last_id + ? WHERE id = 1 RETURNING last_id`,
		count,
	).Scan(&lastID); err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to assign sequence numbers, %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (sequence_number, stream_type, stream_name, version, name, payload, metadata, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return event.AppendResult{}, fmt.Errorf("failed to prepare insert statement, %w", err)
	}

	defer stmt.Close()

	recordedAt := toNanos(es.clock())
	result := event.AppendResult{
		Version:         currentVersion + version.Version(count), //nolint:gosec // Always positive.
		SequenceNumbers: make([]version.SequenceNumber, 0, len(events)),
	}

	for i, evt := range events {
		sequenceNumber := lastID - count + int64(i) + 1

		if _, err := stmt.ExecContext(ctx,
			sequenceNumber, id.Type, id.Name, current+int64(i)+1, evt.name, evt.payload, evt.metadata, recordedAt,
		); err != nil {
			return event.AppendResult{}, fmt.Errorf("failed to insert event, %w", err)
		}

		result.SequenceNumbers = append(result.SequenceNumbers, version.SequenceNumber(sequenceNumber)) //nolint:gosec,lll // Positive.
	}

	return result, nil
}

func expectedVersion(check version.Check) version.Version {
	if v, ok := check.(version.CheckExact); ok {
		return version.Version(v)
	}

	return 0
}
