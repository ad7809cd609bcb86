package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var _ snapshot.Store = new(SnapshotStore)

// SnapshotStore is a snapshot.Store implementation using the "snapshots" table.
// Only the latest Snapshot of each Event Stream is kept.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore returns a new SnapshotStore using the specified database.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Get implements snapshot.Getter.
func (s *SnapshotStore) Get(ctx context.Context, id event.StreamID) (snapshot.Snapshot, error) {
	var (
		v, recordedAt int64
		state         []byte
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT version, state, recorded_at FROM snapshots WHERE stream_type = ? AND stream_name = ?`,
		id.Type, id.Name,
	).Scan(&v, &state, &recordedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, fmt.Errorf("sqlite.SnapshotStore.Get: %s, %w", id, snapshot.ErrNotFound)
	}

	if err != nil {
		return snapshot.Snapshot{}, event.StorageError("sqlite.SnapshotStore.Get", "failed to query snapshot", err)
	}

	return snapshot.Snapshot{
		Version:    version.Version(v), //nolint:gosec // Checked positive by the schema.
		State:      state,
		RecordedAt: fromNanos(recordedAt),
	}, nil
}

// Record implements snapshot.Recorder. Snapshots older than the one
// already recorded are ignored.
func (s *SnapshotStore) Record(ctx context.Context, id event.StreamID, snap snapshot.Snapshot) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (stream_type, stream_name, version, state, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (stream_type, stream_name) DO
		UPDATE SET version = excluded.version, state = excluded.state, recorded_at = excluded.recorded_at
		WHERE snapshots.version < excluded.version`,
		id.Type, id.Name, int64(snap.Version), snap.State, toNanos(snap.RecordedAt), //nolint:gosec // Versions fit int64.
	); err != nil {
		return event.StorageError("sqlite.SnapshotStore.Record", "failed to upsert snapshot", err)
	}

	return nil
}
