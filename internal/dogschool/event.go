package dogschool

import (
	"time"

	"github.com/google/uuid"

	"github.com/go-eventsourcing/eventsourcing/event"
)

// Event is the closed set of Domain Events of a Dog.
type Event interface {
	event.Event
	isDogEvent()
}

var (
	_ Event = new(Registered)
	_ Event = new(TrickAdded)
)

// Registered is the Domain Event recorded when a Dog gets registered.
type Registered struct {
	DogID      uuid.UUID `json:"dog_id"`
	DogName    string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Name implements message.Message.
func (*Registered) Name() string { return "DogRegistered" }
func (*Registered) isDogEvent()  {}

// TrickAdded is the Domain Event recorded when a Dog learns a new trick.
type TrickAdded struct {
	Trick      string    `json:"trick"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Name implements message.Message.
func (*TrickAdded) Name() string { return "DogTrickAdded" }
func (*TrickAdded) isDogEvent()  {}
