package parkwatch

import (
	"context"
	"errors"
	"time"
)

// ErrMissingCredentials is returned when the account identifier or secret is
// absent. It is reported before any network activity.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials are the account identifier and secret used to log in to the
// reservation portal.
type Credentials struct {
	Username string
	Password string
}

// Validate returns [ErrMissingCredentials] if either field is empty.
func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Session is an authenticated portal context. It is acquired once per run
// and released with Close on every exit path.
type Session interface {
	Close() error
}

// Portal is the reservation portal as seen by the monitor.
//
// Implementations perform their own navigation and element lookup. They
// report failures by wrapping the fault markers [ErrStaleReference],
// [ErrTimeout] and [ErrElementNotFound], or the fatal [ErrDateNotOffered].
// Unmarked errors are treated as unexpected faults and retried.
//
// Portal methods are only ever called from one goroutine at a time.
type Portal interface {
	// Authenticate logs in and returns the session that every other call
	// receives.
	Authenticate(ctx context.Context, creds Credentials) (Session, error)

	// SelectDate navigates to the booking page, selects date and returns the
	// raw text of the status element.
	SelectDate(ctx context.Context, s Session, date TargetDate) (string, error)

	// ReadStatus reads the status element again without navigating. It is
	// used to recover from stale element references.
	ReadStatus(ctx context.Context, s Session) (string, error)

	// Refresh is a best-effort recovery action between retries, such as a
	// page reload. Errors are logged and otherwise ignored.
	Refresh(ctx context.Context, s Session) error
}

// Alert describes the availability that triggered a notification.
type Alert struct {
	RunID    string
	Target   TargetDate
	Text     string
	Attempts int
	At       time.Time
}

// AlertSink notifies the operator when the monitor finds availability.
//
// Notify is called exactly once per run. It may block for a bounded time.
// A returned error is logged and never aborts the run.
type AlertSink interface {
	Notify(ctx context.Context, alert Alert) error
}

// AlertSinkFunc adapts a function to [AlertSink].
type AlertSinkFunc func(ctx context.Context, alert Alert) error

// Notify calls f(ctx, alert).
func (f AlertSinkFunc) Notify(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}
