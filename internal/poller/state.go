package poller

import (
	"time"

	"github.com/looplab/fsm"
)

// Monitor states. Success, Fatal and Cancelled are terminal.
const (
	StateIdle      = "idle"
	StateProbing   = "probing"
	StateRetrying  = "retrying"
	StateSuccess   = "success"
	StateFatal     = "fatal"
	StateCancelled = "cancelled"
)

// Machine events.
const (
	eventStart   = "start"
	eventFound   = "found"
	eventRetry   = "retry"
	eventReprobe = "reprobe"
	eventFail    = "fail"
	eventCancel  = "cancel"
)

// monitorEvents is the transition table of the polling loop.
//
//	idle -> probing -> success
//	          |  ^
//	          v  |
//	        retrying
//
// fail is reachable from idle and probing, cancel from every non-terminal
// state.
var monitorEvents = fsm.Events{
	{Name: eventStart, Src: []string{StateIdle}, Dst: StateProbing},
	{Name: eventFound, Src: []string{StateProbing}, Dst: StateSuccess},
	{Name: eventRetry, Src: []string{StateProbing}, Dst: StateRetrying},
	{Name: eventReprobe, Src: []string{StateRetrying}, Dst: StateProbing},
	{Name: eventFail, Src: []string{StateIdle, StateProbing}, Dst: StateFatal},
	{Name: eventCancel, Src: []string{StateIdle, StateProbing, StateRetrying}, Dst: StateCancelled},
}

// IsTerminal reports whether state ends a run.
func IsTerminal(state string) bool {
	switch state {
	case StateSuccess, StateFatal, StateCancelled:
		return true
	default:
		return false
	}
}

// Result kinds, mirroring the root package's ResultKind values.
const (
	KindAvailable = "available"
	KindSoldOut   = "sold_out"
	KindNotFound  = "not_found"
	KindTransient = "transient_error"
)

// Fault kinds carried by KindTransient results.
const (
	FaultStaleReference = "stale_reference"
	FaultTimeout        = "timeout"
	FaultUnexpected     = "unexpected"
)

// Result is the poller-internal view of a single probe outcome.
//
// It uses plain strings rather than the root package types so the root
// package can import poller without a cycle.
type Result struct {
	Kind  string
	Fault string
	Text  string
	Err   error
}

func (r Result) isStale() bool {
	return r.Kind == KindTransient && r.Fault == FaultStaleReference
}

// PollState is a point-in-time view of a running [Monitor].
type PollState struct {
	// State is the current machine state.
	State string

	// Attempt counts probes started, not counting stale re-reads.
	Attempt int

	// LastResult is the most recent classified result.
	LastResult Result

	// Reason is the retry reason for the current wait, if any.
	Reason string

	// StartedAt is when polling began. Zero before Poll is called.
	StartedAt time.Time

	// Elapsed is the time since StartedAt, frozen once a terminal state is
	// reached.
	Elapsed time.Duration
}

// Event is emitted to the event callback on every state transition.
type Event struct {
	From    string
	To      string
	Attempt int
	Result  Result
	Reason  string
	Delay   time.Duration
	Err     error
	At      time.Time
}

// transition carries event details through the machine's callback args.
type transition struct {
	result Result
	reason string
	delay  time.Duration
	err    error
}
