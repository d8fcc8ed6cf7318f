package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// ErrAlreadyPolled is returned when Poll is called on a monitor that has
// already run.
var ErrAlreadyPolled = errors.New("monitor already polled")

// Prober performs reads against the watched page.
//
// A non-nil error from Probe or Reread is fatal and ends polling. Everything
// retryable is reported through [Result] instead.
type Prober interface {
	// Probe navigates to the target and reads the status element.
	Probe(ctx context.Context) (Result, error)

	// Reread reads the status element again without navigating.
	Reread(ctx context.Context) (Result, error)

	// Refresh is a best-effort recovery action run between retries.
	Refresh(ctx context.Context) error
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default [Sleeper] backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config holds the retry delays of a [Monitor].
type Config struct {
	// SoldOutDelay is waited after a sold-out reading.
	SoldOutDelay time.Duration

	// NotFoundDelay is waited after a missing element, a timeout, an
	// unexpected fault or an escalated stale reference.
	NotFoundDelay time.Duration

	// StaleDelay is waited before each stale re-read.
	StaleDelay time.Duration

	// MaxStaleReads is the number of consecutive stale readings, counting
	// the probe itself, after which the result escalates to not-found.
	MaxStaleReads int
}

// DefaultConfig returns the standard delays expressed in multiples of unit:
// 5 units after sold out, 2 after not found and 1 between stale re-reads,
// with escalation on the third stale reading.
func DefaultConfig(unit time.Duration) Config {
	return Config{
		SoldOutDelay:  5 * unit,
		NotFoundDelay: 2 * unit,
		StaleDelay:    unit,
		MaxStaleReads: 3,
	}
}

func (c Config) validate() error {
	if c.SoldOutDelay < 0 || c.NotFoundDelay < 0 || c.StaleDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.MaxStaleReads < 1 {
		return fmt.Errorf("max stale reads must be at least 1, got %d", c.MaxStaleReads)
	}
	return nil
}

// Outcome is the terminal result of [Monitor.Poll].
type Outcome struct {
	// State is one of StateSuccess, StateFatal or StateCancelled.
	State string

	// Attempts is the number of probes started.
	Attempts int

	// Result is the last classified result. For StateSuccess it is the
	// available reading.
	Result Result

	// Elapsed is the total polling time.
	Elapsed time.Duration

	// Err is the fatal error or the context error. Nil on success.
	Err error
}

// Monitor drives a [Prober] until it reports availability, fails fatally or
// its context is cancelled.
//
// The loop has no attempt ceiling: transient faults are always retried.
// Cancellation is checked between every step. A Monitor runs once; a second
// call to Poll returns [ErrAlreadyPolled].
//
// Snapshot is safe to call from other goroutines while Poll runs.
type Monitor struct {
	prober  Prober
	cfg     Config
	logger  *slog.Logger
	sleep   Sleeper
	onEvent func(Event)
	now     func() time.Time

	machine *fsm.FSM

	mu    sync.Mutex
	state PollState
	ran   bool
}

// MonitorOption configures a [Monitor].
type MonitorOption func(*Monitor)

// WithSleeper replaces the wait between retries. Tests use it to record
// delays instead of sleeping.
func WithSleeper(s Sleeper) MonitorOption {
	return func(m *Monitor) {
		if s != nil {
			m.sleep = s
		}
	}
}

// WithEventCallback registers fn to receive every state transition. fn is
// called synchronously on the polling goroutine; panics are recovered.
func WithEventCallback(fn func(Event)) MonitorOption {
	return func(m *Monitor) {
		m.onEvent = fn
	}
}

// WithClock overrides the time source used for timestamps and elapsed time.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor creates a [Monitor] for prober.
func NewMonitor(prober Prober, cfg Config, logger *slog.Logger, opts ...MonitorOption) (*Monitor, error) {
	if prober == nil {
		return nil, errors.New("prober cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		prober: prober,
		cfg:    cfg,
		logger: logger,
		sleep:  Sleep,
		now:    time.Now,
		state:  PollState{State: StateIdle},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.machine = fsm.NewFSM(StateIdle, monitorEvents, fsm.Callbacks{
		"enter_state": m.enterState,
	})
	return m, nil
}

// Snapshot returns the current [PollState].
func (m *Monitor) Snapshot() PollState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	if !s.StartedAt.IsZero() && !IsTerminal(s.State) {
		s.Elapsed = m.now().Sub(s.StartedAt)
	}
	return s
}

// Poll runs the polling loop until a terminal state.
//
// It returns a nil error only for StateSuccess. A fatal prober error is
// returned as is; cancellation returns the context error. In every case the
// returned [Outcome] describes the final state.
func (m *Monitor) Poll(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return Outcome{}, ErrAlreadyPolled
	}
	m.ran = true
	m.state.StartedAt = m.now()
	m.mu.Unlock()

	if ctx.Err() != nil {
		return m.finish(ctx, eventCancel, transition{err: ctx.Err()})
	}
	if err := m.fire(ctx, eventStart, transition{}); err != nil {
		return Outcome{}, err
	}

	for {
		m.beginAttempt()

		result, err := m.safeProbe(ctx, m.prober.Probe)
		escalated := false
		if err == nil && result.isStale() && ctx.Err() == nil {
			result, escalated, err = m.recoverStale(ctx, result)
		}
		if ctx.Err() != nil {
			return m.finish(ctx, eventCancel, transition{result: result, err: ctx.Err()})
		}
		if err != nil {
			return m.finish(ctx, eventFail, transition{result: result, reason: "fatal", err: err})
		}

		if result.Kind == KindAvailable {
			return m.finish(ctx, eventFound, transition{result: result})
		}

		plan := m.plan(result, escalated)
		if err := m.fire(ctx, eventRetry, transition{result: result, reason: plan.reason, delay: plan.delay}); err != nil {
			return Outcome{}, err
		}

		if plan.refreshFirst {
			m.refresh(ctx)
		}
		if err := m.sleep(ctx, plan.delay); err != nil {
			return m.finish(ctx, eventCancel, transition{result: result, err: err})
		}
		if !plan.refreshFirst {
			m.refresh(ctx)
		}
		if ctx.Err() != nil {
			return m.finish(ctx, eventCancel, transition{result: result, err: ctx.Err()})
		}

		if err := m.fire(ctx, eventReprobe, transition{result: result}); err != nil {
			return Outcome{}, err
		}
	}
}

type retryPlan struct {
	reason       string
	delay        time.Duration
	refreshFirst bool
}

// plan picks the recovery action for a non-available result.
func (m *Monitor) plan(r Result, escalated bool) retryPlan {
	switch {
	case r.Kind == KindSoldOut:
		// keep the date selection; reload only after the wait
		return retryPlan{reason: KindSoldOut, delay: m.cfg.SoldOutDelay}
	case escalated:
		return retryPlan{reason: "stale_escalated", delay: m.cfg.NotFoundDelay, refreshFirst: true}
	case r.Kind == KindNotFound:
		return retryPlan{reason: KindNotFound, delay: m.cfg.NotFoundDelay, refreshFirst: true}
	case r.Kind == KindTransient && r.Fault == FaultTimeout:
		return retryPlan{reason: FaultTimeout, delay: m.cfg.NotFoundDelay, refreshFirst: true}
	default:
		m.logger.Warn("unexpected probe fault",
			"kind", r.Kind,
			"fault", r.Fault,
			"error", r.Err,
		)
		return retryPlan{reason: FaultUnexpected, delay: m.cfg.NotFoundDelay, refreshFirst: true}
	}
}

// recoverStale re-reads the status element after a stale reference until
// the reading is no longer stale or MaxStaleReads consecutive stale readings
// have been seen. In the latter case the result escalates to not-found.
func (m *Monitor) recoverStale(ctx context.Context, r Result) (Result, bool, error) {
	reads := 1
	for r.isStale() {
		if reads >= m.cfg.MaxStaleReads {
			m.logger.Info("stale reference persisted, treating as not found", "reads", reads)
			return Result{Kind: KindNotFound, Text: r.Text, Err: r.Err}, true, nil
		}

		m.logger.Debug("stale reference, re-reading status", "reads", reads, "wait", m.cfg.StaleDelay)
		if err := m.sleep(ctx, m.cfg.StaleDelay); err != nil {
			return r, false, nil
		}

		var err error
		r, err = m.safeProbe(ctx, m.prober.Reread)
		if err != nil {
			return r, false, err
		}
		reads++
	}
	return r, false, nil
}

func (m *Monitor) refresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("refresh panic", "panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := m.prober.Refresh(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("refresh failed", "error", err)
	}
}

// safeProbe calls read with panic recovery. A panicking prober becomes an
// unexpected fault carrying a correlation ID; the stack is logged under the
// same ID.
func (m *Monitor) safeProbe(ctx context.Context, read func(context.Context) (Result, error)) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			m.logger.Error("probe panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			result = Result{
				Kind:  KindTransient,
				Fault: FaultUnexpected,
				Err:   fmt.Errorf("probe panic (correlation_id: %s)", correlationID),
			}
			err = nil
		}
	}()
	return read(ctx)
}

func (m *Monitor) beginAttempt() {
	m.mu.Lock()
	m.state.Attempt++
	m.state.Reason = ""
	m.mu.Unlock()
}

// fire triggers a machine event. The machine never sees a cancellable
// context: a cancelled context would leave it stuck mid-transition.
func (m *Monitor) fire(ctx context.Context, event string, t transition) error {
	if err := m.machine.Event(context.WithoutCancel(ctx), event, t); err != nil {
		return fmt.Errorf("state transition %q from %q: %w", event, m.machine.Current(), err)
	}
	return nil
}

// finish fires a terminal event and builds the outcome.
func (m *Monitor) finish(ctx context.Context, event string, t transition) (Outcome, error) {
	if err := m.fire(ctx, event, t); err != nil {
		return Outcome{}, err
	}

	s := m.Snapshot()
	return Outcome{
		State:    s.State,
		Attempts: s.Attempt,
		Result:   s.LastResult,
		Elapsed:  s.Elapsed,
		Err:      t.err,
	}, t.err
}

// enterState records the new state and notifies the event callback.
func (m *Monitor) enterState(_ context.Context, e *fsm.Event) {
	var t transition
	if len(e.Args) > 0 {
		t, _ = e.Args[0].(transition)
	}

	now := m.now()
	m.mu.Lock()
	m.state.State = e.Dst
	if t.result.Kind != "" {
		m.state.LastResult = t.result
	}
	m.state.Reason = t.reason
	if IsTerminal(e.Dst) {
		m.state.Elapsed = now.Sub(m.state.StartedAt)
	}
	ev := Event{
		From:    e.Src,
		To:      e.Dst,
		Attempt: m.state.Attempt,
		Result:  m.state.LastResult,
		Reason:  t.reason,
		Delay:   t.delay,
		Err:     t.err,
		At:      now,
	}
	m.mu.Unlock()

	m.logTransition(ev)
	m.emit(ev)
}

func (m *Monitor) logTransition(ev Event) {
	attrs := []any{
		"from", ev.From,
		"to", ev.To,
		"attempt", ev.Attempt,
	}
	if ev.Result.Kind != "" {
		attrs = append(attrs, "result", ev.Result.Kind)
	}
	if ev.Result.Fault != "" {
		attrs = append(attrs, "fault", ev.Result.Fault)
	}
	if ev.Result.Text != "" {
		attrs = append(attrs, "text", ev.Result.Text)
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Delay > 0 {
		attrs = append(attrs, "delay", ev.Delay)
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}

	switch {
	case ev.To == StateFatal:
		m.logger.Error("monitor transition", attrs...)
	case ev.To == StateRetrying && ev.Result.Kind == KindTransient:
		m.logger.Warn("monitor transition", attrs...)
	default:
		m.logger.Info("monitor transition", attrs...)
	}
}

func (m *Monitor) emit(ev Event) {
	if m.onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event callback panic",
				"panic", fmt.Sprintf("%v", r),
				"to", ev.To,
			)
		}
	}()
	m.onEvent(ev)
}
