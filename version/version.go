package version

// Version is the type to specify Event Stream versions.
// Versions should be starting from 1, as they represent the length of a single Event Stream.
//
// The zero value identifies an Event Stream with no events recorded.
type Version uint32

// SequenceNumber is the type used to represent the sequence number of a Domain Event
// in the whole Event Store; in other words, the global offset of the Event
// across all Event Streams.
//
// Sequence numbers start from 1 and are contiguous.
type SequenceNumber uint64

// SelectFromBeginning is a Selector value that will return all Domain Events in an Event Stream.
var SelectFromBeginning = Selector{From: 0}

// Selector specifies which slice of the Event Stream to select when streaming Domain Events
// from the Event Store.
type Selector struct {
	From Version
}
