package types

import (
	"context"
	"encoding/json"
)

// Change is the outcome of a single store mutation. OldVal is nil on insert,
// NewVal is nil on delete, and both are nil when the mutation touched nothing
// (update or delete of an absent id).
type Change struct {
	OldVal Record `json:"old_val,omitempty"`
	NewVal Record `json:"new_val,omitempty"`
}

// IsZero reports whether the mutation changed nothing.
func (c Change) IsZero() bool {
	return c.OldVal == nil && c.NewVal == nil
}

// Feed states. StateInitializing is implicit at subscribe time; only
// StateReady is delivered as an event.
const (
	StateInitializing = "initializing"
	StateReady        = "ready"
)

// ChangeEvent is one element of a change subscription: either a state
// event (State set) or a record event (Change set).
type ChangeEvent struct {
	State  string
	Change Change

	// Initial marks record events replayed from the snapshot taken at
	// subscribe time.
	Initial bool
}

// IsState reports whether the event is a state marker.
func (e ChangeEvent) IsState() bool {
	return e.State != ""
}

// Name returns the wire event name: "state" or "record".
func (e ChangeEvent) Name() string {
	if e.IsState() {
		return "state"
	}
	return "record"
}

// MarshalJSON encodes state events as {"state": ...} and record events as
// {"old_val": ..., "new_val": ...} with absent sides omitted.
func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	if e.IsState() {
		return json.Marshal(struct {
			State string `json:"state"`
		}{e.State})
	}
	return json.Marshal(e.Change)
}

// ReadyEvent returns the state event that separates the snapshot from the
// live tail.
func ReadyEvent() ChangeEvent {
	return ChangeEvent{State: StateReady}
}

// Cursor is a cancellable, lazy sequence of change events.
type Cursor interface {
	// Next blocks until the next event is available, ctx is done, or the
	// cursor is closed. A closed cursor returns ErrSubscriptionClosed; a
	// cursor terminated by the feed returns the terminating error.
	Next(ctx context.Context) (ChangeEvent, error)

	// Close releases the subscription immediately. Idempotent.
	Close() error
}
