// Package query provides support and utilities to handle and implement
// Domain Queries in your application.
package query

import (
	"context"

	"github.com/go-eventsourcing/eventsourcing/message"
)

// Query represents a Domain Query, a request for information.
// Queries should be phrased in the present, imperative tense, such as "GetDog".
type Query message.Message

// Envelope represents a message containing a Domain Query,
// and optionally includes additional fields in the form of Metadata.
type Envelope[T Query] message.Envelope[T]

// ToEnvelope wraps the provided Query into an Envelope,
// with no metadata attached to it.
func ToEnvelope[T Query](query T) Envelope[T] {
	return Envelope[T]{
		Message:  query,
		Metadata: nil,
	}
}

// Handler accepts a specific kind of Query, evaluates it
// and returns the desired Result.
//
// Query Handlers must not cause state changes.
type Handler[T Query, R any] interface {
	Handle(ctx context.Context, query Envelope[T]) (R, error)
}

// HandlerFunc is a functional type that implements the Handler interface.
type HandlerFunc[T Query, R any] func(ctx context.Context, query Envelope[T]) (R, error)

// Handle implements query.Handler.
func (fn HandlerFunc[T, R]) Handle(ctx context.Context, query Envelope[T]) (R, error) {
	return fn(ctx, query)
}
