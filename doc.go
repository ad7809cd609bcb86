// Package eventsourcing contains types and abstractions to write
// Event-sourced applications, where the state of every Aggregate Root
// is recorded as the ordered sequence of the Domain Events that changed it.
//
// The library contains multiple packages, you might want to start from `aggregate`
// to implement your Aggregate types, and `application` to host their Repositories
// on top of an `event.Store`.
//
// Every Domain Event appended to an Event Store is also assigned a position in
// a single global sequence, readable through the `notification` log by downstream
// consumers. Durable Event Stores are available in the `postgres`, `sqlite`
// and `firestore` packages.
package eventsourcing
