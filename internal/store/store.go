package store

import "time"

// Event is the storage representation of one monitor state transition.
//
// Event is optimised for JSON serialisation (used by the REST API and SSE).
// It is decoupled from the poller's internal types to allow independent
// evolution.
type Event struct {
	// RunID identifies the watcher run that produced the event.
	RunID string `json:"run_id"`

	// Target is the watched date as YYYY-MM-DD.
	Target string `json:"target"`

	// From and State are the machine states before and after the transition.
	From  string `json:"from"`
	State string `json:"state"`

	// Attempt is the probe number the transition belongs to.
	Attempt int `json:"attempt"`

	// Result and Fault are the classified reading, if any.
	Result string `json:"result,omitempty"`
	Fault  string `json:"fault,omitempty"`

	// Text is the raw status text that was read.
	Text string `json:"text,omitempty"`

	// Reason is the retry reason for retrying transitions.
	Reason string `json:"reason,omitempty"`

	// DelayMs is the wait before the next probe in milliseconds.
	DelayMs int64 `json:"delay_ms,omitempty"`

	// ElapsedMs is the time since polling started in milliseconds.
	ElapsedMs int64 `json:"elapsed_ms"`

	// At is when the transition happened.
	At time.Time `json:"at"`

	// Error contains the error message, if any.
	// nil indicates no error.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to monitor events.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update records an event as the latest and notifies all subscribers.
	Update(event Event)

	// Latest returns the most recent event. ok is false before the first
	// Update.
	Latest() (event Event, ok bool)

	// History returns recorded events, oldest first. The returned slice is
	// a snapshot; modifications do not affect the store.
	History() []Event

	// Subscribe returns a channel that receives events.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
