package aggregate_test

import (
	"errors"
	"fmt"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/event/eventtest"
	"github.com/go-eventsourcing/eventsourcing/serde"
)

var errNegativeIncrement = errors.New("counter: increment must be positive")

var counterType = aggregate.Type[aggregate.StringID, *counter]{
	Name:    "counter",
	Factory: func() *counter { return new(counter) },
}

type counter struct {
	aggregate.BaseRoot

	ID    aggregate.StringID `json:"id"`
	Label string             `json:"label"`
	Value int64              `json:"value"`
}

func (c *counter) AggregateID() aggregate.StringID { return c.ID }

func (c *counter) Apply(evt event.Event) error {
	switch evt := evt.(type) {
	case *eventtest.Renamed:
		if c.ID == "" {
			c.ID = aggregate.StringID(evt.To)
		}

		c.Label = evt.To
	case *eventtest.Incremented:
		c.Value += evt.By
	default:
		return fmt.Errorf("counter: unexpected event %T", evt)
	}

	return nil
}

func newCounter(id string) (*counter, error) {
	c := counter{}
	if err := aggregate.RecordThat[aggregate.StringID](&c, event.ToEnvelope(&eventtest.Renamed{To: id})); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *counter) increment(by int64) error {
	if by <= 0 {
		return errNegativeIncrement
	}

	return aggregate.RecordThat[aggregate.StringID](c, event.ToEnvelope(&eventtest.Incremented{By: by}))
}

func (c *counter) equal(other *counter) bool {
	return c.ID == other.ID && c.Label == other.Label && c.Value == other.Value && c.Version() == other.Version()
}

var counterSnapshotSerde = serde.NewJSON(counterType.Factory)
