package dogschool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/query"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var (
	_ query.Query                 = GetDog{}
	_ query.Handler[GetDog, View] = GetDogHandler{}
)

// View is the public-facing representation of a Dog.
type View struct {
	ID      uuid.UUID
	Name    string
	Tricks  []string
	Version version.Version
}

// GetDog is the Domain Query to get a registered Dog.
type GetDog struct {
	ID uuid.UUID
}

// Name implements query.Query.
func (GetDog) Name() string { return "GetDog" }

// GetDogHandler answers GetDog queries by rebuilding the Dog from its events.
type GetDogHandler struct {
	DogRepository aggregate.Getter[uuid.UUID, *Dog]
}

// Handle implements query.Handler.
func (h GetDogHandler) Handle(ctx context.Context, q query.Envelope[GetDog]) (View, error) {
	dog, err := h.DogRepository.Get(ctx, q.Message.ID)
	if err != nil {
		return View{}, fmt.Errorf("dogschool.GetDogHandler: failed to get dog, %w", err)
	}

	return View{
		ID:      dog.AggregateID(),
		Name:    dog.Name(),
		Tricks:  dog.Tricks(),
		Version: dog.Version(),
	}, nil
}
