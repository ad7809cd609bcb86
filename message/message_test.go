package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-eventsourcing/eventsourcing/message"
)

type greeted struct{ Who string }

func (greeted) Name() string { return "Greeted" }

func TestMetadata(t *testing.T) {
	t.Run("with does not mutate the receiver", func(t *testing.T) {
		original := message.Metadata{"a": "1"}
		extended := original.With("b", "2")

		assert.Equal(t, message.Metadata{"a": "1"}, original)
		assert.Equal(t, message.Metadata{"a": "1", "b": "2"}, extended)
	})

	t.Run("with works on nil metadata", func(t *testing.T) {
		var metadata message.Metadata

		assert.Equal(t, message.Metadata{"a": "1"}, metadata.With("a", "1"))
	})

	t.Run("merge overrides existing keys", func(t *testing.T) {
		original := message.Metadata{"a": "1", "b": "2"}
		merged := original.Merge(message.Metadata{"b": "3"})

		assert.Equal(t, message.Metadata{"a": "1", "b": "3"}, merged)
		assert.Equal(t, "2", original["b"])
	})

	t.Run("merge with empty metadata returns the same entries", func(t *testing.T) {
		original := message.Metadata{"a": "1"}

		assert.Equal(t, original, original.Merge(nil))
	})
}

func TestEnvelope(t *testing.T) {
	envelope := message.Envelope[greeted]{
		Message:  greeted{Who: "Fido"},
		Metadata: message.Metadata{"Correlation-Id": "abc"},
	}

	generic := envelope.ToGenericEnvelope()

	assert.Equal(t, "Greeted", generic.Message.Name())
	assert.Equal(t, envelope.Metadata, generic.Metadata)
}
