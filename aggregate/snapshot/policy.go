package snapshot

import "github.com/go-eventsourcing/eventsourcing/version"

// Policy advises on the frequency of the Snapshots to take.
//
// ShouldRecord is called after a successful save, with the Aggregate Root
// version before and after the newly appended Domain Events.
type Policy interface {
	ShouldRecord(previous, current version.Version) bool
}

// PolicyFunc is a functional Policy implementation.
type PolicyFunc func(previous, current version.Version) bool

// ShouldRecord implements snapshot.Policy.
func (fn PolicyFunc) ShouldRecord(previous, current version.Version) bool {
	return fn(previous, current)
}

// Never is a Policy that never takes Snapshots.
var Never Policy = PolicyFunc(func(_, _ version.Version) bool { return false })

// Always is a Policy that takes a Snapshot after every save.
var Always Policy = PolicyFunc(func(_, _ version.Version) bool { return true })

// EveryNVersions returns a Policy that takes a Snapshot every time the
// Aggregate Root version crosses a multiple of n.
//
// A zero n is equivalent to Never.
func EveryNVersions(n version.Version) Policy {
	if n == 0 {
		return Never
	}

	return PolicyFunc(func(previous, current version.Version) bool {
		return current/n > previous/n
	})
}
