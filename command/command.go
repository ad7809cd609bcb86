// Package command contains the types to model Domain Commands and
// the Handlers that execute them.
package command

import (
	"context"

	"github.com/go-eventsourcing/eventsourcing/message"
)

// Command is a Message representing an action being performed by something
// or somebody.
//
// In order to enforce this concept, it is suggested to name Command types
// using "present tense".
type Command message.Message

// Envelope carries a Domain Command and its optional Metadata.
type Envelope[T Command] message.Envelope[T]

// ToEnvelope wraps the provided Command into an Envelope,
// with no metadata attached to it.
func ToEnvelope[T Command](cmd T) Envelope[T] {
	return Envelope[T]{
		Message:  cmd,
		Metadata: nil,
	}
}

// Handler executes a specific kind of Command.
//
// Handlers usually load an Aggregate Root from a Repository, call one of
// its methods and save it back.
type Handler[T Command] interface {
	Handle(ctx context.Context, cmd Envelope[T]) error
}

// HandlerFunc is a functional type that implements the Handler interface.
type HandlerFunc[T Command] func(context.Context, Envelope[T]) error

// Handle implements command.Handler.
func (fn HandlerFunc[T]) Handle(ctx context.Context, cmd Envelope[T]) error {
	return fn(ctx, cmd)
}
