// Package dogschool is a small domain example of an event-sourced
// Application: dogs get registered at the school and learn tricks.
package dogschool

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/event"
)

// Type is the Dog aggregate type.
var Type = aggregate.Type[uuid.UUID, *Dog]{
	Name:    "Dog",
	Factory: func() *Dog { return new(Dog) },
}

// All the errors returned by Dog methods.
var (
	ErrEmptyName  = errors.New("dogschool: dog name is empty")
	ErrNilID      = errors.New("dogschool: dog id is nil")
	ErrEmptyTrick = errors.New("dogschool: trick is empty")

	// ErrNotRegistered is returned when applying an event to a Dog
	// whose stream does not start with a registration.
	ErrNotRegistered = errors.New("dogschool: dog is not registered")
)

// Dog is a dog registered at the school, together with the tricks it learnt.
type Dog struct {
	aggregate.BaseRoot

	id     uuid.UUID
	name   string
	tricks []string
}

// AggregateID implements aggregate.Root.
func (dog *Dog) AggregateID() uuid.UUID { return dog.id }

// Name returns the name the Dog was registered with.
func (dog *Dog) Name() string { return dog.name }

// Tricks returns the tricks learnt by the Dog, in learning order.
func (dog *Dog) Tricks() []string { return slices.Clone(dog.tricks) }

// Apply implements aggregate.Aggregate.
func (dog *Dog) Apply(evt event.Event) error {
	dogEvent, ok := evt.(Event)
	if !ok {
		return fmt.Errorf("dogschool.Dog.Apply: unexpected event type, %T", evt)
	}

	switch kind := dogEvent.(type) {
	case *Registered:
		dog.id = kind.DogID
		dog.name = kind.DogName
		dog.tricks = []string{}
	case *TrickAdded:
		if dog.id == uuid.Nil {
			return fmt.Errorf("dogschool.Dog.Apply: %w", ErrNotRegistered)
		}

		dog.tricks = append(dog.tricks, kind.Trick)
	default:
		return fmt.Errorf("dogschool.Dog.Apply: unexpected event kind, %T", kind)
	}

	return nil
}

// Equal compares the state and the version of two Dogs.
func (dog *Dog) Equal(other *Dog) bool {
	if dog == nil || other == nil {
		return dog == other
	}

	return dog.id == other.id &&
		dog.name == other.name &&
		slices.Equal(dog.tricks, other.tricks) &&
		dog.Version() == other.Version()
}

// Register registers a new Dog at the school.
func Register(id uuid.UUID, name string, now time.Time) (*Dog, error) {
	if id == uuid.Nil {
		return nil, ErrNilID
	}

	if name == "" {
		return nil, ErrEmptyName
	}

	dog := Type.Factory()

	if err := aggregate.RecordThat[uuid.UUID](dog, event.ToEnvelope(&Registered{
		DogID:      id,
		DogName:    name,
		OccurredAt: now,
	})); err != nil {
		return nil, fmt.Errorf("dogschool.Register: failed to record domain event, %w", err)
	}

	return dog, nil
}

// AddTrick teaches a new trick to the Dog.
func (dog *Dog) AddTrick(trick string, now time.Time) error {
	if trick == "" {
		return ErrEmptyTrick
	}

	if err := aggregate.RecordThat[uuid.UUID](dog, event.ToEnvelope(&TrickAdded{
		Trick:      trick,
		OccurredAt: now,
	})); err != nil {
		return fmt.Errorf("dogschool.Dog.AddTrick: failed to record domain event, %w", err)
	}

	return nil
}
