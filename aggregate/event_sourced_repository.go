package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// EventStore is the segregated Event Store interface required
// by an EventSourcedRepository.
type EventStore interface {
	event.Streamer
	event.Appender
}

type repositoryConfig struct {
	namespace      string
	logger         logger.Logger
	clock          func() time.Time
	snapshotStore  snapshot.Store
	snapshotPolicy snapshot.Policy
	snapshotCodec  any
}

// RepositoryOption configures an EventSourcedRepository.
type RepositoryOption func(*repositoryConfig)

// WithNamespace sets the Event Stream namespace used by the Repository.
// By default, the Aggregate Type name is used.
func WithNamespace(namespace string) RepositoryOption {
	return func(cfg *repositoryConfig) { cfg.namespace = namespace }
}

// WithLogger sets the Logger used by the Repository.
func WithLogger(l logger.Logger) RepositoryOption {
	return func(cfg *repositoryConfig) { cfg.logger = l }
}

// WithSnapshots enables Aggregate Root snapshots in the Repository.
//
// After a successful save, the policy is consulted and the Aggregate Root
// state is serialized with the codec and recorded in the store.
// Failures when recording a Snapshot are logged, since the Domain Events
// have already been committed.
//
// The codec must serialize the Aggregate Root type of the Repository,
// otherwise NewEventSourcedRepository panics.
func WithSnapshots[T any](store snapshot.Store, policy snapshot.Policy, codec serde.Bytes[T]) RepositoryOption {
	return func(cfg *repositoryConfig) {
		cfg.snapshotStore = store
		cfg.snapshotPolicy = policy
		cfg.snapshotCodec = codec
	}
}

// WithSnapshotClock overrides the clock used to timestamp Snapshots.
func WithSnapshotClock(clock func() time.Time) RepositoryOption {
	return func(cfg *repositoryConfig) { cfg.clock = clock }
}

type snapshotter[T any] struct {
	store  snapshot.Store
	policy snapshot.Policy
	codec  serde.Bytes[T]
	clock  func() time.Time
}

var _ Repository[StringID, Root[StringID]] = new(EventSourcedRepository[StringID, Root[StringID]])

// EventSourcedRepository provides an aggregate.Repository interface implementation
// that uses an event.Store to store and load the state of the Aggregate Root.
type EventSourcedRepository[I ID, T Root[I]] struct {
	eventStore EventStore
	typ        Type[I, T]
	namespace  string
	logger     logger.Logger
	snapshots  *snapshotter[T]
}

// NewEventSourcedRepository returns a new EventSourcedRepository implementation
// to store and load Aggregate Roots, specified by the aggregate.Type,
// using the provided event.Store implementation.
func NewEventSourcedRepository[I ID, T Root[I]](
	eventStore EventStore,
	typ Type[I, T],
	opts ...RepositoryOption,
) *EventSourcedRepository[I, T] {
	cfg := repositoryConfig{
		namespace:      typ.Name,
		logger:         nil,
		clock:          time.Now,
		snapshotStore:  nil,
		snapshotPolicy: nil,
		snapshotCodec:  nil,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	repo := &EventSourcedRepository[I, T]{
		eventStore: eventStore,
		typ:        typ,
		namespace:  cfg.namespace,
		logger:     cfg.logger,
		snapshots:  nil,
	}

	if cfg.snapshotStore != nil {
		codec, ok := cfg.snapshotCodec.(serde.Bytes[T])
		if !ok {
			panic(fmt.Sprintf("aggregate.NewEventSourcedRepository: snapshot codec %T does not serialize %T", cfg.snapshotCodec, typ.Factory()))
		}

		policy := cfg.snapshotPolicy
		if policy == nil {
			policy = snapshot.Always
		}

		repo.snapshots = &snapshotter[T]{
			store:  cfg.snapshotStore,
			policy: policy,
			codec:  codec,
			clock:  cfg.clock,
		}
	}

	return repo
}

// Namespace returns the Event Stream namespace used by the Repository.
func (repo EventSourcedRepository[I, T]) Namespace() string {
	return repo.namespace
}

func (repo EventSourcedRepository[I, T]) streamID(id I) event.StreamID {
	return event.StreamID{
		Type: repo.namespace,
		Name: id.String(),
	}
}

// Get returns the Aggregate Root with the specified id, rebuilt from
// the Domain Events of its Event Stream.
//
// aggregate.ErrRootNotFound is returned if no Domain Event has been recorded
// for the Aggregate Root. A partially rehydrated Aggregate Root is never returned.
func (repo EventSourcedRepository[I, T]) Get(ctx context.Context, id I) (T, error) {
	var zeroValue T

	streamID := repo.streamID(id)

	root, err := repo.loadSnapshot(ctx, streamID)
	if err != nil {
		return zeroValue, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventStream := make(event.Stream, 1)
	selector := version.Selector{From: root.Version() + 1}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := repo.eventStore.Stream(ctx, eventStream, streamID, selector); err != nil {
			return fmt.Errorf("aggregate.EventSourcedRepository.Get: failed to stream events, %w", err)
		}

		return nil
	})

	if err := RehydrateFromEvents[I](root, eventStream); err != nil {
		cancel()
		_ = group.Wait()

		return zeroValue, fmt.Errorf("aggregate.EventSourcedRepository.Get: failed to rehydrate %s, %w", streamID, err)
	}

	if err := group.Wait(); err != nil {
		return zeroValue, err
	}

	if root.Version() == 0 {
		return zeroValue, fmt.Errorf("aggregate.EventSourcedRepository.Get: %s, %w", streamID, ErrRootNotFound)
	}

	return root, nil
}

func (repo EventSourcedRepository[I, T]) loadSnapshot(ctx context.Context, streamID event.StreamID) (T, error) {
	if repo.snapshots == nil {
		return repo.typ.Factory(), nil
	}

	snap, err := repo.snapshots.store.Get(ctx, streamID)
	if errors.Is(err, snapshot.ErrNotFound) {
		return repo.typ.Factory(), nil
	}

	if err != nil {
		var zeroValue T
		return zeroValue, fmt.Errorf("aggregate.EventSourcedRepository.Get: failed to get snapshot, %w", err)
	}

	root, err := RehydrateFromState[I](snap.Version, snap.State, repo.snapshots.codec)
	if err != nil {
		var zeroValue T
		return zeroValue, fmt.Errorf("aggregate.EventSourcedRepository.Get: failed to load snapshot, %w", err)
	}

	logger.Debug(repo.logger, "Aggregate Root loaded from snapshot",
		logger.With("stream", streamID.String()),
		logger.With("version", snap.Version),
	)

	return root, nil
}

// Save commits the Domain Events recorded by the Aggregate Root since it was
// loaded, using the version it was loaded at as the expected Event Stream version.
//
// Saving an Aggregate Root with no recorded Domain Events is a no-op.
// A version.ConflictError is returned if another writer saved the same
// Aggregate Root in the meantime: the caller should load it again and retry.
func (repo EventSourcedRepository[I, T]) Save(ctx context.Context, root T) error {
	events := root.FlushRecordedEvents()
	if len(events) == 0 {
		return nil
	}

	streamID := repo.streamID(root.AggregateID())
	previousVersion := root.Version() - version.Version(len(events))

	result, err := repo.eventStore.Append(ctx, streamID, version.CheckExact(previousVersion), events...)
	if err != nil {
		return fmt.Errorf("aggregate.EventSourcedRepository.Save: failed to commit recorded events, %w", err)
	}

	if result.Version != root.Version() {
		return fmt.Errorf("aggregate.EventSourcedRepository.Save: %s, %w", streamID, &VersionMismatchError{
			Expected: root.Version(),
			Actual:   result.Version,
		})
	}

	logger.Debug(repo.logger, "Domain Events committed",
		logger.With("stream", streamID.String()),
		logger.With("version", result.Version),
		logger.With("events", len(events)),
	)

	repo.recordSnapshot(ctx, streamID, previousVersion, root)

	return nil
}

func (repo EventSourcedRepository[I, T]) recordSnapshot(ctx context.Context, streamID event.StreamID, previous version.Version, root T) {
	if repo.snapshots == nil || !repo.snapshots.policy.ShouldRecord(previous, root.Version()) {
		return
	}

	state, err := repo.snapshots.codec.Serialize(root)
	if err != nil {
		logger.Error(repo.logger, "Failed to serialize Aggregate Root snapshot",
			logger.With("stream", streamID.String()),
			logger.With("error", err),
		)

		return
	}

	snap := snapshot.Snapshot{
		Version:    root.Version(),
		State:      state,
		RecordedAt: repo.snapshots.clock(),
	}

	if err := repo.snapshots.store.Record(ctx, streamID, snap); err != nil {
		logger.Error(repo.logger, "Failed to record Aggregate Root snapshot",
			logger.With("stream", streamID.String()),
			logger.With("version", snap.Version),
			logger.With("error", err),
		)
	}
}
