package parkwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	portal          Portal
	creds           Credentials
	target          TargetDate
	classifier      Classifier
	unit            time.Duration
	delays          *delays
	maxStaleReads   int
	loginAttempts   int
	sinks           []AlertSink
	sleeper         func(ctx context.Context, d time.Duration) error
	holdOnSuccess   bool
	port            int
	title           string
	historyURL      string
	historySize     int
	recorder        eventRecorder
	logger          *slog.Logger
	statusCallbacks []func(Event)
}

type delays struct {
	soldOut  time.Duration
	notFound time.Duration
	stale    time.Duration
}

// Option is a function that configures a [Watcher] during construction.
//
// Options return an error if validation fails.
type Option func(*watcherConfig) error

// WithPortal sets the reservation portal. Required.
//
// Returns an error if p is nil.
func WithPortal(p Portal) Option {
	return func(cfg *watcherConfig) error {
		if p == nil {
			return errors.New("portal cannot be nil")
		}
		cfg.portal = p
		return nil
	}
}

// WithCredentials sets the portal account. Missing fields are reported by
// [Watcher.Start] as [ErrMissingCredentials] before any network activity.
func WithCredentials(creds Credentials) Option {
	return func(cfg *watcherConfig) error {
		cfg.creds = creds
		return nil
	}
}

// WithTarget sets the date to watch. Required.
//
// Example:
//
//	date, err := parkwatch.ResolveDate("3/29", time.Now())
//	if err != nil { ... }
//	w, err := parkwatch.New(parkwatch.WithTarget(date), ...)
func WithTarget(date TargetDate) Option {
	return func(cfg *watcherConfig) error {
		if date.IsZero() {
			return errors.New("target date cannot be zero")
		}
		cfg.target = date
		return nil
	}
}

// WithClassifier replaces the status text classifier.
func WithClassifier(c Classifier) Option {
	return func(cfg *watcherConfig) error {
		if c.Mode != "" {
			if _, err := ParseMatchMode(string(c.Mode)); err != nil {
				return err
			}
		}
		cfg.classifier = c
		return nil
	}
}

// WithMatchMode sets how status text without the sold-out marker is read.
// Defaults to [MatchLenient].
func WithMatchMode(mode MatchMode) Option {
	return func(cfg *watcherConfig) error {
		m, err := ParseMatchMode(string(mode))
		if err != nil {
			return err
		}
		cfg.classifier.Mode = m
		return nil
	}
}

// WithTimeUnit sets the unit the retry delays are expressed in: 5 units
// after sold out, 2 after a missing element or fault, 1 before each stale
// re-read. It also paces login retries. Defaults to 1 second.
//
// Returns an error if the duration is zero or negative.
func WithTimeUnit(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("time unit must be positive")
		}
		cfg.unit = d
		return nil
	}
}

// WithDelays overrides the retry delays set by [WithTimeUnit].
//
// Returns an error if any delay is negative.
func WithDelays(soldOut, notFound, staleRefetch time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if soldOut < 0 || notFound < 0 || staleRefetch < 0 {
			return errors.New("delays must not be negative")
		}
		cfg.delays = &delays{soldOut: soldOut, notFound: notFound, stale: staleRefetch}
		return nil
	}
}

// WithMaxStaleReads sets how many consecutive stale readings, counting the
// first probe, are tolerated before the reading is handled as a missing
// element. Defaults to 3.
func WithMaxStaleReads(n int) Option {
	return func(cfg *watcherConfig) error {
		if n < 1 {
			return fmt.Errorf("max stale reads must be at least 1, got %d", n)
		}
		cfg.maxStaleReads = n
		return nil
	}
}

// WithLoginAttempts sets how many times login is tried, with exponential
// backoff between tries, before Start fails. Defaults to 3.
func WithLoginAttempts(n int) Option {
	return func(cfg *watcherConfig) error {
		if n < 1 {
			return fmt.Errorf("login attempts must be at least 1, got %d", n)
		}
		cfg.loginAttempts = n
		return nil
	}
}

// WithAlertSink adds a sink notified once when availability is found. Can
// be called multiple times; sinks are notified in registration order.
//
// Returns an error if sink is nil.
func WithAlertSink(sink AlertSink) Option {
	return func(cfg *watcherConfig) error {
		if sink == nil {
			return errors.New("alert sink cannot be nil")
		}
		cfg.sinks = append(cfg.sinks, sink)
		return nil
	}
}

// WithSleeper replaces the timer used for retry delays. sleep must return
// ctx.Err() when ctx is done before d elapses. Intended for tests and
// simulations.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(cfg *watcherConfig) error {
		if sleep == nil {
			return errors.New("sleeper cannot be nil")
		}
		cfg.sleeper = sleep
		return nil
	}
}

// WithHoldOnSuccess controls whether [Watcher.Start] keeps the session open
// after finding availability until its context is cancelled. Defaults to
// true so the operator can complete the booking in the same session.
func WithHoldOnSuccess(hold bool) Option {
	return func(cfg *watcherConfig) error {
		cfg.holdOnSuccess = hold
		return nil
	}
}

// WithPort enables the status server on port. The dashboard, JSON API and
// Prometheus metrics are then available at http://localhost:<port>.
// Port 0 disables the server, which is the default.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *watcherConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "parkwatch".
func WithTitle(title string) Option {
	return func(cfg *watcherConfig) error {
		cfg.title = title
		return nil
	}
}

// WithHistory records every event to the Postgres database at
// databaseURL. An empty URL disables recording.
//
// Example:
//
//	parkwatch.WithHistory("postgres://parkwatch@localhost:5432/parkwatch")
func WithHistory(databaseURL string) Option {
	return func(cfg *watcherConfig) error {
		cfg.historyURL = databaseURL
		return nil
	}
}

// WithHistorySize bounds the in-memory event history served by the status
// server. Defaults to 500.
func WithHistorySize(n int) Option {
	return func(cfg *watcherConfig) error {
		if n < 1 {
			return fmt.Errorf("history size must be positive, got %d", n)
		}
		cfg.historySize = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers a function called on every monitor state
// transition.
//
// Multiple callbacks may be registered; they execute in registration order,
// synchronously on the polling goroutine, after the event is stored.
// Callbacks must not block. Panics are recovered and logged.
//
// Example:
//
//	w, err := parkwatch.New(
//	    ...,
//	    parkwatch.WithStatusCallback(func(e parkwatch.Event) {
//	        if e.State == parkwatch.StateRetrying {
//	            log.Printf("attempt %d: %s", e.Attempt, e.Result)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(Event)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}

// withRecorder injects an event recorder in place of the Postgres one.
func withRecorder(r eventRecorder) Option {
	return func(cfg *watcherConfig) error {
		cfg.recorder = r
		return nil
	}
}
