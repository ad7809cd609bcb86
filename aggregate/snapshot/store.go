package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// ErrNotFound is returned by a Getter when no Snapshot has been recorded
// for the requested Event Stream.
var ErrNotFound = errors.New("snapshot: not found")

// Snapshot is the serialized state of an Aggregate Root at a specific version.
type Snapshot struct {
	Version    version.Version
	State      []byte
	RecordedAt time.Time
}

// Getter returns the latest Snapshot recorded for an Event Stream.
type Getter interface {
	Get(ctx context.Context, id event.StreamID) (Snapshot, error)
}

// Recorder records a new Snapshot for an Event Stream, replacing
// any older one.
type Recorder interface {
	Record(ctx context.Context, id event.StreamID, snapshot Snapshot) error
}

// Store is a Snapshot store, able to both get and record Snapshots.
type Store interface {
	Getter
	Recorder
}
