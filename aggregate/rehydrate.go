package aggregate

import (
	"errors"
	"fmt"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/serde"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// ErrVersionMismatch is returned when an Event Stream contains a gap or a
// duplicated version. It signals a corrupted Event Store, and it should not
// be surfaced to end users.
var ErrVersionMismatch = errors.New("aggregate: event version mismatch")

// VersionMismatchError describes the Domain Event that broke the version
// sequence of an Aggregate Root. It matches ErrVersionMismatch.
type VersionMismatchError struct {
	Expected version.Version
	Actual   version.Version
}

func (err *VersionMismatchError) Error() string {
	return fmt.Sprintf("aggregate: event version mismatch, expected: %d, actual: %d", err.Expected, err.Actual)
}

// Is reports whether target is ErrVersionMismatch.
func (err *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch //nolint:errorlint // Sentinel comparison.
}

// RehydrateFromEvents rehydrates an Aggregate Root from a read-only Event Stream.
//
// Each Domain Event must carry the version following the current Aggregate
// Root version, otherwise a *VersionMismatchError is returned.
func RehydrateFromEvents[I ID](root Root[I], eventStream event.StreamRead) error {
	for evt := range eventStream {
		if expected := root.Version() + 1; evt.Version != expected {
			return fmt.Errorf("aggregate.RehydrateFromEvents: invalid event stream, %w", &VersionMismatchError{
				Expected: expected,
				Actual:   evt.Version,
			})
		}

		if err := root.Apply(evt.Message); err != nil {
			return fmt.Errorf("aggregate.RehydrateFromEvents: failed to apply event %d, %w", evt.Version, err)
		}

		root.setVersion(evt.Version)
	}

	return nil
}

// RehydrateFromState rehydrates an Aggregate Root from a serialized state,
// typically coming from a snapshot, recorded at the specified version.
func RehydrateFromState[I ID, T Root[I]](v version.Version, state []byte, deserializer serde.Deserializer[T, []byte]) (T, error) {
	var zeroValue T

	root, err := deserializer.Deserialize(state)
	if err != nil {
		return zeroValue, fmt.Errorf("aggregate.RehydrateFromState: failed to deserialize state, %w", err)
	}

	root.setVersion(v)

	return root, nil
}
