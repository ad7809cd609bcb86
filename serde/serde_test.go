package serde_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/serde"
)

type color uint8

const (
	colorRed color = iota + 1
	colorBlue
)

type paint struct {
	Color color
	Coats int64
}

type paintJSON struct {
	Color string `json:"color"`
	Coats int64  `json:"coats"`
}

var paintSerde = serde.FuseFuncs(
	func(p paint) (*paintJSON, error) {
		switch p.Color {
		case colorRed:
			return &paintJSON{Color: "RED", Coats: p.Coats}, nil
		case colorBlue:
			return &paintJSON{Color: "BLUE", Coats: p.Coats}, nil
		default:
			return nil, fmt.Errorf("unexpected color, %v", p.Color)
		}
	},
	func(p *paintJSON) (paint, error) {
		switch p.Color {
		case "RED":
			return paint{Color: colorRed, Coats: p.Coats}, nil
		case "BLUE":
			return paint{Color: colorBlue, Coats: p.Coats}, nil
		default:
			return paint{}, fmt.Errorf("unexpected color, %v", p.Color)
		}
	},
)

func TestJSON(t *testing.T) {
	jsonSerde := serde.NewJSON(func() *paintJSON { return new(paintJSON) })

	t.Run("it works with valid data", func(t *testing.T) {
		data, err := jsonSerde.Serialize(&paintJSON{Color: "RED", Coats: 2})
		require.NoError(t, err)
		assert.JSONEq(t, `{"color":"RED","coats":2}`, string(data))

		got, err := jsonSerde.Deserialize(data)
		assert.NoError(t, err)
		assert.Equal(t, &paintJSON{Color: "RED", Coats: 2}, got)
	})

	t.Run("it fails deserialization of invalid json data", func(t *testing.T) {
		got, err := jsonSerde.Deserialize([]byte("{"))
		assert.Error(t, err)
		assert.Zero(t, got)
	})
}

func TestChained(t *testing.T) {
	chained := serde.Chain[paint, *paintJSON, []byte](
		paintSerde,
		serde.NewJSON(func() *paintJSON { return new(paintJSON) }),
	)

	data, err := chained.Serialize(paint{Color: colorBlue, Coats: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"color":"BLUE","coats":3}`, string(data))

	got, err := chained.Deserialize(data)
	assert.NoError(t, err)
	assert.Equal(t, paint{Color: colorBlue, Coats: 3}, got)

	_, err = chained.Serialize(paint{})
	assert.ErrorContains(t, err, "first stage serializer failed")

	_, err = chained.Deserialize([]byte(`{"color":"GREEN"}`))
	assert.ErrorContains(t, err, "first stage deserializer failed")
}

func TestProto(t *testing.T) {
	t.Run("wire format", func(t *testing.T) {
		protoSerde := serde.NewProto(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) })

		data, err := protoSerde.Serialize(wrapperspb.String("roll over"))
		require.NoError(t, err)

		got, err := protoSerde.Deserialize(data)
		require.NoError(t, err)
		assert.True(t, proto.Equal(wrapperspb.String("roll over"), got))

		_, err = protoSerde.Deserialize([]byte{0xff})
		assert.Error(t, err)
	})

	t.Run("json mapping", func(t *testing.T) {
		protoJSONSerde := serde.NewProtoJSON(func() *structpb.Struct { return new(structpb.Struct) })

		value, err := structpb.NewStruct(map[string]any{"name": "Fido", "tricks": []any{"roll over"}})
		require.NoError(t, err)

		data, err := protoJSONSerde.Serialize(value)
		require.NoError(t, err)

		got, err := protoJSONSerde.Deserialize(data)
		require.NoError(t, err)
		assert.True(t, proto.Equal(value, got))
	})
}

type barked struct {
	Times int `json:"times"`
}

func (*barked) Name() string { return "Barked" }

type wagged struct{}

func (*wagged) Name() string { return "Wagged" }

type sat struct{}

func (sat) Name() string { return "Sat" }

func TestMessageJSON(t *testing.T) {
	codec, err := serde.NewMessageJSON(
		func() message.Message { return new(barked) },
		func() message.Message { return new(wagged) },
	)
	require.NoError(t, err)

	t.Run("round trips registered messages", func(t *testing.T) {
		data, err := codec.Serialize(&barked{Times: 3})
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Barked","payload":{"times":3}}`, string(data))

		got, err := codec.Deserialize(data)
		require.NoError(t, err)
		assert.Equal(t, &barked{Times: 3}, got)
	})

	t.Run("rejects unknown messages", func(t *testing.T) {
		_, err := codec.Serialize(sat{})
		assert.ErrorIs(t, err, serde.ErrUnknownMessage)

		_, err = codec.Deserialize([]byte(`{"name":"Sat","payload":{}}`))
		assert.ErrorIs(t, err, serde.ErrUnknownMessage)
	})

	t.Run("rejects invalid registrations", func(t *testing.T) {
		_, err := serde.NewMessageJSON(func() message.Message { return sat{} })
		assert.Error(t, err)

		_, err = serde.NewMessageJSON(
			func() message.Message { return new(wagged) },
			func() message.Message { return new(wagged) },
		)
		assert.Error(t, err)

		assert.Panics(t, func() {
			serde.MustNewMessageJSON(func() message.Message { return sat{} })
		})
	})
}
