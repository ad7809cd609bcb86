package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-eventsourcing/eventsourcing/event"
)

var _ Store = new(InMemoryStore)

// InMemoryStore is a map-based, thread-safe in-memory Snapshot store.
//
// Since there is no entry eviction, it is suggested to use this store
// only for test scenarios and short-lived processes.
type InMemoryStore struct {
	mx        sync.RWMutex
	snapshots map[event.StreamID]Snapshot
}

// NewInMemoryStore returns a fresh new, empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[event.StreamID]Snapshot),
	}
}

// Record implements snapshot.Recorder.
//
// Snapshots older than the one already recorded are ignored.
func (s *InMemoryStore) Record(ctx context.Context, id event.StreamID, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot.InMemoryStore.Record: context error, %w", err)
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	if current, ok := s.snapshots[id]; ok && current.Version >= snapshot.Version {
		return nil
	}

	state := make([]byte, len(snapshot.State))
	copy(state, snapshot.State)
	snapshot.State = state

	s.snapshots[id] = snapshot

	return nil
}

// Get implements snapshot.Getter.
func (s *InMemoryStore) Get(ctx context.Context, id event.StreamID) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot.InMemoryStore.Get: context error, %w", err)
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot.InMemoryStore.Get: no snapshot for %s, %w", id, ErrNotFound)
	}

	return snapshot, nil
}
