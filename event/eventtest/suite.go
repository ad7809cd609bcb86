package eventtest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/message"
	"github.com/go-eventsourcing/eventsourcing/version"
)

// StoreSuite is a full testing suite for an event.Store instance.
//
// The suite does not require an empty Event Store: every test works on
// freshly generated Event Streams, and global ordering assertions are relative
// to the latest sequence number observed before the test starts.
// Tests must not run in parallel with other writers on the same store.
type StoreSuite struct {
	suite.Suite

	storeFactory func() event.Store
	eventStore   event.Store // NOTE: this instance is initialized in SetupTest.
	baseline     version.SequenceNumber
	serializes   bool
}

// SuiteOption configures a StoreSuite.
type SuiteOption func(*StoreSuite)

// WithoutSerialization marks the Event Store under test as keeping Domain
// Events in memory as they are, so that unregistered payloads are accepted.
func WithoutSerialization() SuiteOption {
	return func(ss *StoreSuite) { ss.serializes = false }
}

// NewStoreSuite creates a new Event Store testing suite using the provided factory.
//
// The Event Store is expected to serialize payloads with Serde, unless
// WithoutSerialization is specified.
func NewStoreSuite(factory func() event.Store, opts ...SuiteOption) *StoreSuite {
	ss := &StoreSuite{storeFactory: factory, serializes: true}

	for _, opt := range opts {
		opt(ss)
	}

	return ss
}

// SetupTest creates a new Event Store instance for each test in the suite.
func (ss *StoreSuite) SetupTest() {
	ss.eventStore = ss.storeFactory()

	baseline, err := ss.eventStore.LatestSequenceNumber(context.Background())
	ss.Require().NoError(err)

	ss.baseline = baseline
}

func newStreamID(typ string) event.StreamID {
	return event.StreamID{Type: typ, Name: uuid.NewString()}
}

func incremented(by int64) event.Envelope {
	return event.ToEnvelope(&Incremented{By: by})
}

// stripRecordedAt zeroes the persistence timestamp, which depends on the
// store clock and cannot be asserted on.
func stripRecordedAt(events []event.Persisted) []event.Persisted {
	mapped := make([]event.Persisted, 0, len(events))

	for _, evt := range events {
		evt.RecordedAt = time.Time{}
		mapped = append(mapped, evt)
	}

	return mapped
}

func (ss *StoreSuite) readStream(id event.StreamID, selector version.Selector) []event.Persisted {
	events, err := event.StreamToSlice(context.Background(), func(ctx context.Context, stream event.StreamWrite) error {
		return ss.eventStore.Stream(ctx, stream, id, selector)
	})
	ss.Require().NoError(err)

	return stripRecordedAt(events)
}

func (ss *StoreSuite) sequence(n uint64) version.SequenceNumber {
	return ss.baseline + version.SequenceNumber(n)
}

// TestAppendAndStream interleaves appends on two Event Streams and checks
// versions and sequence numbers of both.
func (ss *StoreSuite) TestAppendAndStream() {
	ctx := context.Background()
	first, second := newStreamID("first-type"), newStreamID("second-type")

	for i := int64(1); i < 4; i++ {
		result, err := ss.eventStore.Append(ctx, first, version.CheckExact(i-1), incremented(i))
		ss.Require().NoError(err)
		ss.Equal(version.Version(i), result.Version)
		ss.Equal([]version.SequenceNumber{ss.sequence(uint64(2*i - 1))}, result.SequenceNumbers)

		result, err = ss.eventStore.Append(ctx, second, version.CheckExact(i-1), incremented(i))
		ss.Require().NoError(err)
		ss.Equal(version.Version(i), result.Version)
		ss.Equal([]version.SequenceNumber{ss.sequence(uint64(2 * i))}, result.SequenceNumbers)
	}

	expectedStream := func(id event.StreamID, offset uint64) []event.Persisted {
		events := make([]event.Persisted, 0, 3)
		for i := uint64(1); i < 4; i++ {
			events = append(events, event.Persisted{
				StreamID:       id,
				Envelope:       incremented(int64(i)),
				Version:        version.Version(i),
				SequenceNumber: ss.sequence(2*i - offset),
			})
		}

		return events
	}

	ss.Equal(expectedStream(first, 1), ss.readStream(first, version.SelectFromBeginning))
	ss.Equal(expectedStream(second, 0), ss.readStream(second, version.SelectFromBeginning))

	// Selecting from a version in the middle of the stream skips the first events.
	ss.Equal(expectedStream(first, 1)[1:], ss.readStream(first, version.Selector{From: 2}))

	// Streaming with an out-of-bound selector yields no events.
	ss.Empty(ss.readStream(first, version.Selector{From: 4}))

	// Streaming an unknown Event Stream yields no events.
	ss.Empty(ss.readStream(newStreamID("first-type"), version.SelectFromBeginning))
}

// TestStreamsAreNamespaced checks that two Event Streams with the same name
// but different types are kept separate.
func (ss *StoreSuite) TestStreamsAreNamespaced() {
	ctx := context.Background()
	first := newStreamID("first-type")
	second := event.StreamID{Type: "second-type", Name: first.Name}

	_, err := ss.eventStore.Append(ctx, first, version.CheckExact(0), incremented(1))
	ss.Require().NoError(err)

	result, err := ss.eventStore.Append(ctx, second, version.CheckExact(0), incremented(2))
	ss.Require().NoError(err)
	ss.Equal(version.Version(1), result.Version)

	ss.Len(ss.readStream(first, version.SelectFromBeginning), 1)
	ss.Len(ss.readStream(second, version.SelectFromBeginning), 1)
}

// TestAppendBatch checks that multiple events appended together get
// contiguous versions and sequence numbers.
func (ss *StoreSuite) TestAppendBatch() {
	ctx := context.Background()
	id := newStreamID("batch-type")

	result, err := ss.eventStore.Append(ctx, id, version.CheckExact(0),
		incremented(1),
		event.ToEnvelope(&Renamed{To: "batch"}),
		incremented(2),
	)
	ss.Require().NoError(err)

	ss.Equal(version.Version(3), result.Version)
	ss.Equal([]version.SequenceNumber{ss.sequence(1), ss.sequence(2), ss.sequence(3)}, result.SequenceNumbers)

	events := ss.readStream(id, version.SelectFromBeginning)
	ss.Require().Len(events, 3)

	for i, evt := range events {
		ss.Equal(version.Version(i+1), evt.Version)
		ss.Equal(ss.sequence(uint64(i+1)), evt.SequenceNumber)
	}

	ss.Equal(&Renamed{To: "batch"}, events[1].Message)
}

// TestOptimisticConcurrency checks the version.CheckExact handling.
func (ss *StoreSuite) TestOptimisticConcurrency() {
	ctx := context.Background()
	id := newStreamID("third-type")

	result, err := ss.eventStore.Append(ctx, id, version.CheckExact(0), incremented(0))
	ss.Require().NoError(err)
	ss.Equal(version.Version(1), result.Version)

	// Appending with the same expected version should fail.
	_, err = ss.eventStore.Append(ctx, id, version.CheckExact(0), incremented(0))

	var conflictErr version.ConflictError

	ss.Require().ErrorAs(err, &conflictErr)
	ss.Equal(version.ConflictError{Expected: 0, Actual: 1}, conflictErr)
	ss.ErrorIs(err, version.ErrConflict)

	// Expecting a version ahead of the current one also fails.
	_, err = ss.eventStore.Append(ctx, id, version.CheckExact(5), incremented(0))
	ss.Require().ErrorAs(err, &conflictErr)
	ss.Equal(version.ConflictError{Expected: 5, Actual: 1}, conflictErr)

	// A failed append leaves no trace behind.
	ss.Len(ss.readStream(id, version.SelectFromBeginning), 1)

	latest, err := ss.eventStore.LatestSequenceNumber(ctx)
	ss.Require().NoError(err)
	ss.Equal(ss.sequence(1), latest)
}

// TestAppendWithCheckAny checks appends that skip the version check.
func (ss *StoreSuite) TestAppendWithCheckAny() {
	ctx := context.Background()
	id := newStreamID("any-type")

	result, err := ss.eventStore.Append(ctx, id, version.Any, incremented(1), incremented(2))
	ss.Require().NoError(err)
	ss.Equal(version.Version(2), result.Version)

	result, err = ss.eventStore.Append(ctx, id, version.Any, incremented(3))
	ss.Require().NoError(err)
	ss.Equal(version.Version(3), result.Version)
	ss.Equal([]version.SequenceNumber{ss.sequence(3)}, result.SequenceNumbers)
}

// TestAppendNoEvents checks that empty appends are rejected.
func (ss *StoreSuite) TestAppendNoEvents() {
	_, err := ss.eventStore.Append(context.Background(), newStreamID("empty-type"), version.CheckExact(0))
	ss.ErrorIs(err, event.ErrNoEvents)
}

// TestMetadata checks that the event metadata survive persistence.
func (ss *StoreSuite) TestAppendIsAtomic() {
	if !ss.serializes {
		ss.T().Skip("the Event Store does not serialize payloads")
	}

	ctx := context.Background()
	id := newStreamID("counter")

	_, err := ss.eventStore.Append(ctx, id, version.CheckExact(0),
		incremented(1),
		event.ToEnvelope(&Unknown{}),
	)
	ss.Require().Error(err)

	latest, err := ss.eventStore.LatestSequenceNumber(ctx)
	ss.Require().NoError(err)
	ss.Equal(ss.baseline, latest)
	ss.Empty(ss.readStream(id, version.SelectFromBeginning))

	result, err := ss.eventStore.Append(ctx, id, version.CheckExact(0), incremented(2))
	ss.Require().NoError(err)
	ss.Equal(version.Version(1), result.Version)
	ss.Equal([]version.SequenceNumber{ss.sequence(1)}, result.SequenceNumbers)

	events := ss.readStream(id, version.SelectFromBeginning)
	ss.Require().Len(events, 1)
	ss.Equal(&Incremented{By: 2}, events[0].Message)
}

func (ss *StoreSuite) TestMetadata() {
	ctx := context.Background()
	id := newStreamID("metadata-type")

	envelope := incremented(1)
	envelope.Metadata = message.Metadata{"Correlation-Id": "abc"}

	_, err := ss.eventStore.Append(ctx, id, version.CheckExact(0), envelope)
	ss.Require().NoError(err)

	events := ss.readStream(id, version.SelectFromBeginning)
	ss.Require().Len(events, 1)
	ss.Equal("abc", events[0].Metadata["Correlation-Id"])
}

// TestReadNotifications checks the global order of the Event Store.
func (ss *StoreSuite) TestReadNotifications() {
	ctx := context.Background()
	first, second := newStreamID("first-type"), newStreamID("second-type")

	_, err := ss.eventStore.Append(ctx, first, version.CheckExact(0), incremented(1), incremented(2))
	ss.Require().NoError(err)

	_, err = ss.eventStore.Append(ctx, second, version.CheckExact(0), incremented(3))
	ss.Require().NoError(err)

	_, err = ss.eventStore.Append(ctx, first, version.CheckExact(2), incremented(4))
	ss.Require().NoError(err)

	notifications, err := ss.eventStore.ReadNotifications(ctx, ss.sequence(1), 10)
	ss.Require().NoError(err)
	ss.Require().Len(notifications, 4)

	expected := []struct {
		id      event.StreamID
		version version.Version
		by      int64
	}{
		{first, 1, 1},
		{first, 2, 2},
		{second, 1, 3},
		{first, 3, 4},
	}

	for i, notification := range notifications {
		ss.Equal(ss.sequence(uint64(i+1)), notification.SequenceNumber)
		ss.Equal(expected[i].id, notification.StreamID)
		ss.Equal(expected[i].version, notification.Version)
		ss.Equal(&Incremented{By: expected[i].by}, notification.Message)
		ss.False(notification.RecordedAt.IsZero())
	}

	page, err := ss.eventStore.ReadNotifications(ctx, ss.sequence(2), 2)
	ss.Require().NoError(err)
	ss.Require().Len(page, 2)
	ss.Equal(ss.sequence(2), page[0].SequenceNumber)
	ss.Equal(ss.sequence(3), page[1].SequenceNumber)

	page, err = ss.eventStore.ReadNotifications(ctx, ss.sequence(5), 10)
	ss.Require().NoError(err)
	ss.Empty(page)

	latest, err := ss.eventStore.LatestSequenceNumber(ctx)
	ss.Require().NoError(err)
	ss.Equal(ss.sequence(4), latest)
}

// TestConcurrentAppendsOnDifferentStreams checks that concurrent appends
// on different Event Streams all succeed, and get globally unique,
// gap-free sequence numbers.
func (ss *StoreSuite) TestConcurrentAppendsOnDifferentStreams() {
	const writers, eventsPerWriter = 8, 3

	ctx := context.Background()
	group, ctx := errgroup.WithContext(ctx)

	for range writers {
		group.Go(func() error {
			id := newStreamID("concurrent-type")

			for i := range eventsPerWriter {
				if _, err := ss.eventStore.Append(ctx, id, version.CheckExact(i), incremented(int64(i))); err != nil {
					return fmt.Errorf("append on %s failed, %w", id, err)
				}
			}

			return nil
		})
	}

	ss.Require().NoError(group.Wait())

	notifications, err := ss.eventStore.ReadNotifications(context.Background(), ss.sequence(1), writers*eventsPerWriter+1)
	ss.Require().NoError(err)
	ss.Require().Len(notifications, writers*eventsPerWriter)

	versionsByStream := make(map[event.StreamID][]version.Version)

	for i, notification := range notifications {
		ss.Equal(ss.sequence(uint64(i+1)), notification.SequenceNumber)
		versionsByStream[notification.StreamID] = append(versionsByStream[notification.StreamID], notification.Version)
	}

	ss.Len(versionsByStream, writers)

	for _, versions := range versionsByStream {
		ss.Equal([]version.Version{1, 2, 3}, versions)
	}
}

// TestConcurrentAppendsOnSameStream checks that when multiple writers
// race on the same expected version, exactly one of them wins.
func (ss *StoreSuite) TestConcurrentAppendsOnSameStream() {
	const writers = 8

	var (
		succeeded  atomic.Int32
		conflicted atomic.Int32
	)

	id := newStreamID("race-type")
	group, ctx := errgroup.WithContext(context.Background())

	for i := range writers {
		group.Go(func() error {
			_, err := ss.eventStore.Append(ctx, id, version.CheckExact(0), incremented(int64(i)))

			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, version.ErrConflict):
				conflicted.Add(1)
			default:
				return err
			}

			return nil
		})
	}

	ss.Require().NoError(group.Wait())
	ss.Equal(int32(1), succeeded.Load())
	ss.Equal(int32(writers-1), conflicted.Load())

	ss.Len(ss.readStream(id, version.SelectFromBeginning), 1)

	latest, err := ss.eventStore.LatestSequenceNumber(context.Background())
	ss.Require().NoError(err)
	ss.Equal(ss.sequence(1), latest)
}
