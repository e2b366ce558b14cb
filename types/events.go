package types

import "time"

// EventKind discriminates orchestrator events.
type EventKind string

const (
	// EventDispatched is emitted when an identifier is handed to a worker slot
	// (pipelined mode) or submitted to the pool queue (fan-out mode).
	EventDispatched EventKind = "dispatched"
	// EventCompleted is emitted once per identifier, carrying its outcome.
	EventCompleted EventKind = "completed"
)

// Event is one observable step of a batch.
// Events for a batch are delivered in a single total order; Seq starts at 1.
type Event struct {
	// BatchID ties the event to its batch.
	BatchID string `msgpack:"batch_id" json:"batch_id"`
	// Seq is the monotonic sequence number within the batch.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Kind is the event discriminator.
	Kind EventKind `msgpack:"kind" json:"kind"`
	// Index is the identifier's submission position.
	Index int `msgpack:"index" json:"index"`
	// Identifier is the identifier the event refers to.
	Identifier Identifier `msgpack:"identifier" json:"identifier"`
	// Outcome is set for EventCompleted.
	Outcome *Outcome `msgpack:"outcome,omitempty" json:"outcome,omitempty"`
	// Ts is the event time in RFC 3339 UTC.
	Ts string `msgpack:"ts" json:"ts"`
}

// NewEvent stamps an event with the current time.
func NewEvent(kind EventKind, index int, id Identifier) Event {
	return Event{
		Kind:       kind,
		Index:      index,
		Identifier: id,
		Ts:         time.Now().UTC().Format(time.RFC3339Nano),
	}
}
