package version

import (
	"errors"
	"fmt"
)

// Any is the Check value to use when no Optimistic Concurrency check
// should be carried out on append.
var Any = CheckAny{}

// Check is the sum type of the version checks an Event Store performs
// before appending new Domain Events to an Event Stream.
type Check interface {
	isVersionCheck()
}

// CheckAny disables the Optimistic Concurrency check.
type CheckAny struct{}

func (CheckAny) isVersionCheck() {}

// CheckExact requires the Event Stream to be exactly at the specified version.
type CheckExact Version

func (CheckExact) isVersionCheck() {}

// ErrConflict is matched by every ConflictError through errors.Is.
var ErrConflict = errors.New("version: conflict")

// ConflictError is returned by an Event Store when the expected version
// of an Event Stream does not match the actual one at append time.
//
// The caller should reload the Aggregate Root and retry the command.
type ConflictError struct {
	Expected Version
	Actual   Version
}

func (err ConflictError) Error() string {
	return fmt.Sprintf(
		"version.Check: conflict detected; expected stream version: %d, actual: %d",
		err.Expected,
		err.Actual,
	)
}

// Is reports whether target is ErrConflict.
func (err ConflictError) Is(target error) bool {
	return target == ErrConflict //nolint:errorlint // Sentinel comparison.
}
