package dogschool

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/serde"
)

// EventSerde serializes the Dog Domain Events to JSON, to be used with
// the durable Event Stores.
var EventSerde = serde.MustNewMessageJSON(
	func() message.Message { return new(Registered) },
	func() message.Message { return new(TrickAdded) },
)

type dogState struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Tricks []string  `json:"tricks"`
}

// SnapshotSerde serializes the Dog state, to be used with snapshot stores.
var SnapshotSerde = serde.FuseFuncs(serializeDog, deserializeDog)

func serializeDog(dog *Dog) ([]byte, error) {
	data, err := json.Marshal(dogState{
		ID:     dog.id,
		Name:   dog.name,
		Tricks: dog.tricks,
	})
	if err != nil {
		return nil, fmt.Errorf("dogschool.SnapshotSerde: failed to serialize dog, %w", err)
	}

	return data, nil
}

func deserializeDog(data []byte) (*Dog, error) {
	var state dogState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("dogschool.SnapshotSerde: failed to deserialize dog, %w", err)
	}

	tricks := state.Tricks
	if tricks == nil {
		tricks = []string{}
	}

	return &Dog{
		id:     state.ID,
		name:   state.Name,
		tricks: tricks,
	}, nil
}
