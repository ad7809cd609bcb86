package serde

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// NewProto returns a new serde instance where some Protobuf message (`T`)
// gets serialized to and deserialized from the Protobuf wire format.
//
// The factory must return a non-nil, empty message.
func NewProto[T proto.Message](factory func() T) Fused[T, []byte] {
	return FuseFuncs(
		func(t T) ([]byte, error) {
			data, err := proto.MarshalOptions{Deterministic: true}.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("serde.Proto: failed to serialize data, %w", err)
			}

			return data, nil
		},
		func(data []byte) (T, error) {
			var zeroValue T

			model := factory()
			if err := proto.Unmarshal(data, model); err != nil {
				return zeroValue, fmt.Errorf("serde.Proto: failed to deserialize data, %w", err)
			}

			return model, nil
		},
	)
}

// NewProtoJSON returns a new serde instance where some Protobuf message (`T`)
// gets serialized to and deserialized from its canonical JSON mapping.
//
// Unknown fields are discarded on deserialization, so that payloads written
// by newer message definitions can still be read.
func NewProtoJSON[T proto.Message](factory func() T) Fused[T, []byte] {
	return FuseFuncs(
		func(t T) ([]byte, error) {
			data, err := protojson.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("serde.ProtoJSON: failed to serialize data, %w", err)
			}

			return data, nil
		},
		func(data []byte) (T, error) {
			var zeroValue T

			model := factory()
			if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, model); err != nil {
				return zeroValue, fmt.Errorf("serde.ProtoJSON: failed to deserialize data, %w", err)
			}

			return model, nil
		},
	)
}
