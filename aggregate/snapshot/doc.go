// Package snapshot provides support for Aggregate Root snapshots.
//
// Snapshots are used by an Event-sourced Aggregate Repository as an optimization
// technique to speed up the Aggregate state rehydration process, by saving
// the state of the Aggregate Root at a particular version in a separate store.
//
// A snapshot is never authoritative: rehydrating from a snapshot followed by
// the Domain Events recorded after it must yield the same state as a full replay.
package snapshot
