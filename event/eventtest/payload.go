// Package eventtest contains the conformance testing suite every
// event.Store implementation is expected to pass, together with the
// Domain Event payloads it uses.
package eventtest

import (
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/serde"
)

// Incremented is a test Domain Event payload.
type Incremented struct {
	By int64 `json:"by"`
}

// Name implements message.Message.
func (*Incremented) Name() string { return "Incremented" }

// Renamed is a test Domain Event payload.
type Renamed struct {
	To string `json:"to"`
}

// Name implements message.Message.
func (*Renamed) Name() string { return "Renamed" }

// Unknown is a Domain Event payload that is not registered in Serde.
type Unknown struct{}

// Name implements message.Message.
func (*Unknown) Name() string { return "Unknown" }

// Serde is the serde durable Event Stores should use to run the suite.
var Serde = serde.MustNewMessageJSON(
	func() message.Message { return new(Incremented) },
	func() message.Message { return new(Renamed) },
)
