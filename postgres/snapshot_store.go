package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var _ snapshot.Store = new(SnapshotStore)

// SnapshotStore is a snapshot.Store implementation using the "snapshots"
// table, created by RunMigrations.
//
// Only the latest Snapshot of each Event Stream is kept.
type SnapshotStore struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

// NewSnapshotStore returns a new SnapshotStore using the specified connection pool.
func NewSnapshotStore(pool *pgxpool.Pool, opts ...Option[*SnapshotStore]) *SnapshotStore {
	s := &SnapshotStore{pool: pool, clock: time.Now}

	for _, opt := range opts {
		opt.apply(s)
	}

	return s
}

// Get implements snapshot.Getter.
func (s *SnapshotStore) Get(ctx context.Context, id event.StreamID) (snapshot.Snapshot, error) {
	var (
		v    int64
		snap snapshot.Snapshot
	)

	err := s.pool.QueryRow(ctx,
		`SELECT version, state, recorded_at FROM snapshots WHERE stream_type = $1 AND stream_name = $2`,
		id.Type, id.Name,
	).Scan(&v, &snap.State, &snap.RecordedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return snapshot.Snapshot{}, fmt.Errorf("postgres.SnapshotStore.Get: %s, %w", id, snapshot.ErrNotFound)
	}

	if err != nil {
		return snapshot.Snapshot{}, event.StorageError("postgres.SnapshotStore.Get", "failed to query snapshot", err)
	}

	snap.Version = version.Version(v) //nolint:gosec // Checked positive by the schema.

	return snap, nil
}

// Record implements snapshot.Recorder.
//
// Snapshots older than the one already recorded are ignored.
func (s *SnapshotStore) Record(ctx context.Context, id event.StreamID, snap snapshot.Snapshot) error {
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.clock()
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (stream_type, stream_name, version, state, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stream_type, stream_name) DO
		UPDATE SET version = EXCLUDED.version, state = EXCLUDED.state, recorded_at = EXCLUDED.recorded_at
		WHERE snapshots.version < EXCLUDED.version`,
		id.Type, id.Name, int64(snap.Version), snap.State, recordedAt,
	); err != nil {
		return event.StorageError("postgres.SnapshotStore.Record", "failed to record snapshot", err)
	}

	return nil
}
