package serde

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-eventsourcing/eventsourcing/message"
)

var _ Bytes[message.Message] = new(MessageJSON)

// ErrUnknownMessage is returned when deserializing a Message whose name
// has not been registered.
var ErrUnknownMessage = errors.New("serde: unknown message name")

type messageJSONEnvelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// MessageJSON serializes Messages of a closed set of kinds to JSON,
// keeping the Message name next to the payload so that the right type
// can be instantiated on deserialization.
//
// Use NewMessageJSON to create a new instance.
type MessageJSON struct {
	factories map[string]func() message.Message
}

// NewMessageJSON registers the Message factories a MessageJSON is able to deserialize.
//
// Factories must return pointers to zero-valued Messages, and each Message
// name can only be registered once.
func NewMessageJSON(factories ...func() message.Message) (*MessageJSON, error) {
	s := &MessageJSON{factories: make(map[string]func() message.Message, len(factories))}

	for _, factory := range factories {
		msg := factory()
		if msg == nil || reflect.ValueOf(msg).Kind() != reflect.Pointer {
			return nil, fmt.Errorf("serde.NewMessageJSON: factory must return a pointer, got %T", msg)
		}

		if _, ok := s.factories[msg.Name()]; ok {
			return nil, fmt.Errorf("serde.NewMessageJSON: message %q registered twice", msg.Name())
		}

		s.factories[msg.Name()] = factory
	}

	return s, nil
}

// MustNewMessageJSON is like NewMessageJSON, but panics on error.
// Useful for package-level variables.
func MustNewMessageJSON(factories ...func() message.Message) *MessageJSON {
	s, err := NewMessageJSON(factories...)
	if err != nil {
		panic(err)
	}

	return s
}

// Serialize implements serde.Serializer.
func (s *MessageJSON) Serialize(msg message.Message) ([]byte, error) {
	if _, ok := s.factories[msg.Name()]; !ok {
		return nil, fmt.Errorf("serde.MessageJSON: failed to serialize %q, %w", msg.Name(), ErrUnknownMessage)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serde.MessageJSON: failed to serialize payload, %w", err)
	}

	data, err := json.Marshal(messageJSONEnvelope{Name: msg.Name(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("serde.MessageJSON: failed to serialize envelope, %w", err)
	}

	return data, nil
}

// Deserialize implements serde.Deserializer.
func (s *MessageJSON) Deserialize(data []byte) (message.Message, error) {
	var envelope messageJSONEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("serde.MessageJSON: failed to deserialize envelope, %w", err)
	}

	factory, ok := s.factories[envelope.Name]
	if !ok {
		return nil, fmt.Errorf("serde.MessageJSON: failed to deserialize %q, %w", envelope.Name, ErrUnknownMessage)
	}

	msg := factory()
	if err := json.Unmarshal(envelope.Payload, msg); err != nil {
		return nil, fmt.Errorf("serde.MessageJSON: failed to deserialize %q payload, %w", envelope.Name, err)
	}

	return msg, nil
}
