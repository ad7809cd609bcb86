package dogschool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/command"
)

var (
	_ command.Command              = RegisterDog{}
	_ command.Handler[RegisterDog] = RegisterDogHandler{}
	_ command.Command              = AddTrick{}
	_ command.Handler[AddTrick]    = AddTrickHandler{}
)

// RegisterDog is the Domain Command to register a new Dog.
type RegisterDog struct {
	ID      uuid.UUID
	DogName string
}

// Name implements command.Command.
func (RegisterDog) Name() string { return "RegisterDog" }

// RegisterDogHandler handles RegisterDog commands.
type RegisterDogHandler struct {
	Clock         func() time.Time
	DogRepository aggregate.Saver[uuid.UUID, *Dog]
}

// Handle implements command.Handler.
func (h RegisterDogHandler) Handle(ctx context.Context, cmd command.Envelope[RegisterDog]) error {
	dog, err := Register(cmd.Message.ID, cmd.Message.DogName, h.Clock())
	if err != nil {
		return fmt.Errorf("dogschool.RegisterDogHandler: failed to register dog, %w", err)
	}

	if err := h.DogRepository.Save(ctx, dog); err != nil {
		return fmt.Errorf("dogschool.RegisterDogHandler: failed to save dog, %w", err)
	}

	return nil
}

// AddTrick is the Domain Command to teach a trick to a registered Dog.
type AddTrick struct {
	DogID uuid.UUID
	Trick string
}

// Name implements command.Command.
func (AddTrick) Name() string { return "AddTrick" }

// AddTrickHandler handles AddTrick commands.
//
// Concurrency conflicts are returned to the caller as they are:
// the command can be retried, since the Dog will be loaded again.
type AddTrickHandler struct {
	Clock         func() time.Time
	DogRepository aggregate.Repository[uuid.UUID, *Dog]
}

// Handle implements command.Handler.
func (h AddTrickHandler) Handle(ctx context.Context, cmd command.Envelope[AddTrick]) error {
	dog, err := h.DogRepository.Get(ctx, cmd.Message.DogID)
	if err != nil {
		return fmt.Errorf("dogschool.AddTrickHandler: failed to get dog, %w", err)
	}

	if err := dog.AddTrick(cmd.Message.Trick, h.Clock()); err != nil {
		return fmt.Errorf("dogschool.AddTrickHandler: failed to add trick, %w", err)
	}

	if err := h.DogRepository.Save(ctx, dog); err != nil {
		return fmt.Errorf("dogschool.AddTrickHandler: failed to save dog, %w", err)
	}

	return nil
}
