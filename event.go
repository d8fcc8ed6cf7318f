package parkwatch

import (
	"time"

	"github.com/jpalmerr/parkwatch/internal/poller"
	"github.com/jpalmerr/parkwatch/internal/store"
)

// Monitor states reported in [Event], [Snapshot] and [Outcome].
const (
	StateIdle      = poller.StateIdle
	StateProbing   = poller.StateProbing
	StateRetrying  = poller.StateRetrying
	StateSuccess   = poller.StateSuccess
	StateFatal     = poller.StateFatal
	StateCancelled = poller.StateCancelled
)

// Event describes one monitor state transition.
//
// Events are delivered to callbacks registered with [WithStatusCallback].
// Each Event is a fresh value; callbacks may retain it.
type Event struct {
	RunID  string
	Target TargetDate

	// From and State are the states before and after the transition.
	From  string
	State string

	// Attempt is the probe number the transition belongs to.
	Attempt int

	// Result is the most recent classified reading. Its Kind is empty
	// before the first probe completes.
	Result ProbeResult

	// Reason and Delay describe the wait that follows a retrying
	// transition: "sold_out", "not_found", "timeout", "unexpected" or
	// "stale_escalated".
	Reason string
	Delay  time.Duration

	// Elapsed is the time since polling started.
	Elapsed time.Duration

	// Err is the fatal error or the cancellation cause on terminal
	// transitions.
	Err error

	At time.Time
}

// Snapshot is a point-in-time view of a [Watcher].
type Snapshot struct {
	RunID      string
	Target     TargetDate
	State      string
	Attempt    int
	LastResult ProbeResult
	Reason     string
	Elapsed    time.Duration
}

// Outcome is the terminal result of [Watcher.Start].
type Outcome struct {
	RunID string

	// State is StateSuccess, StateFatal or StateCancelled.
	State string

	// Attempts is the number of probes started.
	Attempts int

	// Result is the last classified reading; for StateSuccess it holds
	// the availability text.
	Result  ProbeResult
	Elapsed time.Duration

	// Err is nil on success.
	Err error
}

// toProbeResult converts a poller result to the public type.
func toProbeResult(r poller.Result) ProbeResult {
	return ProbeResult{
		Kind:  ResultKind(r.Kind),
		Fault: FaultKind(r.Fault),
		Text:  r.Text,
		Err:   r.Err,
	}
}

// toPollerResult converts a public result to the poller's string view.
func toPollerResult(r ProbeResult) poller.Result {
	return poller.Result{
		Kind:  string(r.Kind),
		Fault: string(r.Fault),
		Text:  r.Text,
		Err:   r.Err,
	}
}

// toStoreEvent converts a public event to its storage representation.
func toStoreEvent(e Event) store.Event {
	var errStr *string
	if e.Err != nil {
		s := e.Err.Error()
		errStr = &s
	}

	return store.Event{
		RunID:     e.RunID,
		Target:    e.Target.String(),
		From:      e.From,
		State:     e.State,
		Attempt:   e.Attempt,
		Result:    string(e.Result.Kind),
		Fault:     string(e.Result.Fault),
		Text:      e.Result.Text,
		Reason:    e.Reason,
		DelayMs:   e.Delay.Milliseconds(),
		ElapsedMs: e.Elapsed.Milliseconds(),
		At:        e.At,
		Error:     errStr,
	}
}
