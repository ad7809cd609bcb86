// Package version contains the types used to version Event Streams
// and to order Domain Events globally in an Event Store.
package version
