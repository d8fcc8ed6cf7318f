package parkwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jpalmerr/parkwatch/dashboard"
	"github.com/jpalmerr/parkwatch/internal/history"
	"github.com/jpalmerr/parkwatch/internal/metrics"
	"github.com/jpalmerr/parkwatch/internal/poller"
	"github.com/jpalmerr/parkwatch/internal/server"
	"github.com/jpalmerr/parkwatch/internal/store"
)

const (
	defaultTimeUnit      = time.Second
	defaultLoginAttempts = 3
	historyBuffer        = 256
)

// ErrAlreadyStarted is returned by [Watcher.Start] on a second call.
var ErrAlreadyStarted = errors.New("watcher already started")

// eventRecorder persists events outside the process. It is satisfied by
// *history.Recorder.
type eventRecorder interface {
	Record(ctx context.Context, e store.Event) error
	Close()
}

// Watcher polls a reservation portal for one target date and alerts when
// availability appears.
//
// A Watcher is created with [New] and runs once with [Watcher.Start]:
//
//	w, err := parkwatch.New(
//	    parkwatch.WithPortal(p),
//	    parkwatch.WithCredentials(creds),
//	    parkwatch.WithTarget(date),
//	    parkwatch.WithAlertSink(sink),
//	)
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	outcome, err := w.Start(ctx)
//
// The caller controls the lifecycle via the context.
type Watcher struct {
	runID         string
	portal        Portal
	creds         Credentials
	target        TargetDate
	classifier    Classifier
	monitorCfg    poller.Config
	unit          time.Duration
	loginAttempts int
	sinks         []AlertSink
	sleeper       poller.Sleeper
	holdOnSuccess bool
	port          int
	title         string
	historyURL    string
	recorder      eventRecorder
	logger        *slog.Logger
	callbacks     []func(Event)

	store   *store.MemoryStore
	metrics *metrics.Metrics

	mu      sync.Mutex
	started bool
	monitor *poller.Monitor
	history chan store.Event
}

// New creates a [Watcher] with the given options.
//
// [WithPortal] and [WithTarget] are required. Other options have defaults:
//   - Time unit: 1 second (delays of 5, 2 and 1 units)
//   - Max stale reads: 3
//   - Login attempts: 3
//   - Match mode: lenient
//   - Status server: disabled
//
// Returns an error if a required option is missing or any option is invalid.
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{
		unit:          defaultTimeUnit,
		loginAttempts: defaultLoginAttempts,
		holdOnSuccess: true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.portal == nil {
		return nil, errors.New("a portal is required")
	}
	if cfg.target.IsZero() {
		return nil, errors.New("a target date is required")
	}

	monitorCfg := poller.DefaultConfig(cfg.unit)
	if cfg.delays != nil {
		monitorCfg.SoldOutDelay = cfg.delays.soldOut
		monitorCfg.NotFoundDelay = cfg.delays.notFound
		monitorCfg.StaleDelay = cfg.delays.stale
	}
	if cfg.maxStaleReads > 0 {
		monitorCfg.MaxStaleReads = cfg.maxStaleReads
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	sleeper := poller.Sleeper(cfg.sleeper)
	if sleeper == nil {
		sleeper = poller.Sleep
	}

	runID := uuid.NewString()

	return &Watcher{
		runID:         runID,
		portal:        cfg.portal,
		creds:         cfg.creds,
		target:        cfg.target,
		classifier:    cfg.classifier,
		monitorCfg:    monitorCfg,
		unit:          cfg.unit,
		loginAttempts: cfg.loginAttempts,
		sinks:         cfg.sinks,
		sleeper:       sleeper,
		holdOnSuccess: cfg.holdOnSuccess,
		port:          cfg.port,
		title:         cfg.title,
		historyURL:    cfg.historyURL,
		recorder:      cfg.recorder,
		logger:        logger.With("run_id", runID),
		callbacks:     cfg.statusCallbacks,
		store:         store.NewMemoryStore(cfg.historySize),
		metrics:       metrics.New(),
	}, nil
}

// RunID returns the identifier attached to every event and log line of
// this watcher.
func (w *Watcher) RunID() string {
	return w.runID
}

// Target returns the watched date.
func (w *Watcher) Target() TargetDate {
	return w.target
}

// Snapshot returns the current monitor state. It is safe to call while
// Start runs.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	m := w.monitor
	w.mu.Unlock()

	s := Snapshot{RunID: w.runID, Target: w.target, State: StateIdle}
	if m == nil {
		return s
	}
	ps := m.Snapshot()
	s.State = ps.State
	s.Attempt = ps.Attempt
	s.LastResult = toProbeResult(ps.LastResult)
	s.Reason = ps.Reason
	s.Elapsed = ps.Elapsed
	return s
}

// Start logs in, polls until the target date has availability and alerts
// the configured sinks.
//
// Start blocks. On success the sinks are notified once and, unless
// [WithHoldOnSuccess] disabled it, the session stays open until ctx is
// cancelled so the operator can finish the booking. The session is closed
// on every exit path.
//
// The returned error is nil only for StateSuccess. Login failures after
// all attempts and fatal portal errors return StateFatal; cancellation
// returns StateCancelled with the context error.
func (w *Watcher) Start(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return Outcome{}, ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("parkwatch starting", "target", w.target.String())

	if ctx.Err() != nil {
		return w.cancelled(ctx.Err())
	}

	// nothing is opened or bound until the credentials are usable
	if err := w.creds.Validate(); err != nil {
		return w.fatal(err)
	}

	stopHistory, err := w.startHistory(ctx)
	if err != nil {
		return w.fatal(err)
	}
	defer stopHistory()

	if w.port > 0 {
		srv := server.NewServer(w.store, w.port, dashboard.Assets, w.title, w.metrics.Handler(), w.logger)
		if err := srv.Start(ctx); err != nil {
			return w.fatal(fmt.Errorf("failed to start HTTP server: %w", err))
		}
		w.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", w.port))
	}

	sess, err := w.login(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return w.cancelled(ctx.Err())
		}
		return w.fatal(err)
	}
	defer w.closeSession(sess)

	prober := &portalProber{
		portal:     w.portal,
		session:    sess,
		target:     w.target,
		classifier: w.classifier,
		metrics:    w.metrics,
	}
	monitor, err := poller.NewMonitor(prober, w.monitorCfg, w.logger,
		poller.WithSleeper(w.sleeper),
		poller.WithEventCallback(w.handleEvent),
	)
	if err != nil {
		return w.fatal(err)
	}
	w.mu.Lock()
	w.monitor = monitor
	w.mu.Unlock()

	res, err := monitor.Poll(ctx)
	out := Outcome{
		RunID:    w.runID,
		State:    res.State,
		Attempts: res.Attempts,
		Result:   toProbeResult(res.Result),
		Elapsed:  res.Elapsed,
		Err:      err,
	}
	if res.State == "" {
		// the machine rejected a transition
		out.State = StateFatal
	}

	switch out.State {
	case StateSuccess:
		w.logger.Info("availability found",
			"target", w.target.String(),
			"text", out.Result.Text,
			"attempts", out.Attempts,
			"elapsed", out.Elapsed,
		)
		w.alert(ctx, out)
		if w.holdOnSuccess {
			w.logger.Info("session kept open, press Ctrl+C to stop")
			<-ctx.Done()
		}
	case StateCancelled:
		w.logger.Info("watch cancelled", "attempts", out.Attempts, "elapsed", out.Elapsed)
	default:
		w.logger.Error("watch failed", "attempts", out.Attempts, "error", out.Err)
	}

	return out, out.Err
}

// login authenticates with exponential backoff, up to loginAttempts tries.
func (w *Watcher) login(ctx context.Context) (Session, error) {
	b :=backoff.NewExponentialBackOff()
	b.InitialInterval = w.unit
	b.MaxInterval = 10 * w.unit
	b.MaxElapsedTime = 0

	var (
		sess    Session
		attempt int
	)
	operation := func() error {
		attempt++
		s, err := w.safeAuthenticate(ctx)
		w.metrics.ObserveLogin(err == nil)
		if err != nil {
			if errors.Is(err, ErrMissingCredentials) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		sess = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		w.logger.Warn("login failed, retrying",
			"attempt", attempt,
			"max_attempts", w.loginAttempts,
			"retry_in", next,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.loginAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("login failed after %d attempt(s): %w", attempt, err)
	}

	w.logger.Info("logged in", "attempts", attempt)
	return sess, nil
}

// safeAuthenticate calls the portal with panic recovery.
func (w *Watcher) safeAuthenticate(ctx context.Context) (sess Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.New().String()
			w.logger.Error("portal authenticate panicked",
				"correlation_id", correlationID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			sess, err = nil, fmt.Errorf("authenticate panicked (correlation_id: %s)", correlationID)
		}
	}()
	return w.portal.Authenticate(ctx, w.creds)
}

func (w *Watcher) closeSession(sess Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		w.logger.Warn("failed to close session", "error", err)
		return
	}
	w.logger.Info("session closed")
}

// alert notifies every sink once. Sink failures are logged and counted.
func (w *Watcher) alert(ctx context.Context, out Outcome) {
	if len(w.sinks) == 0 {
		w.logger.Warn("no alert sinks configured")
		return
	}

	a := Alert{
		RunID:    w.runID,
		Target:   w.target,
		Text:     out.Result.Text,
		Attempts: out.Attempts,
		At:       time.Now(),
	}
	for _, sink := range w.sinks {
		err := notifySafe(ctx, sink, a)
		w.metrics.ObserveAlert(err == nil)
		if err != nil {
			w.logger.Warn("alert sink failed", "error", err)
		}
	}
}

func notifySafe(ctx context.Context, sink AlertSink, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alert sink panicked: %v", r)
		}
	}()
	return sink.Notify(ctx, a)
}

// handleEvent fans a monitor transition out to the store, metrics, history
// and status callbacks, in that order.
func (w *Watcher) handleEvent(pe poller.Event) {
	w.mu.Lock()
	m := w.monitor
	hist := w.history
	w.mu.Unlock()

	var elapsed time.Duration
	if m != nil {
		if started := m.Snapshot().StartedAt; !started.IsZero() {
			elapsed = pe.At.Sub(started)
		}
	}

	ev := Event{
		RunID:   w.runID,
		Target:  w.target,
		From:    pe.From,
		State:   pe.To,
		Attempt: pe.Attempt,
		Result:  toProbeResult(pe.Result),
		Reason:  pe.Reason,
		Delay:   pe.Delay,
		Elapsed: elapsed,
		Err:     pe.Err,
		At:      pe.At,
	}

	stored := toStoreEvent(ev)
	w.store.Update(stored)

	w.metrics.SetState(ev.State)
	w.metrics.SetProgress(ev.Attempt, ev.Elapsed)
	if ev.State == StateRetrying {
		w.metrics.ObserveRetry(ev.Reason)
	}

	if hist != nil {
		select {
		case hist <- stored:
		default:
			w.logger.Warn("history buffer full, dropping event", "state", ev.State, "attempt", ev.Attempt)
		}
	}

	for _, cb := range w.callbacks {
		invokeCallbackSafe(cb, ev, w.logger)
	}
}

// startHistory opens the recorder, if configured, and drains events to it
// in the background. The returned stop function flushes queued events.
func (w *Watcher) startHistory(ctx context.Context) (func(), error) {
	rec := w.recorder
	if rec == nil && w.historyURL != "" {
		r, err := history.Open(ctx, w.historyURL)
		if err != nil {
			return nil, err
		}
		rec = r
	}
	if rec == nil {
		return func() {}, nil
	}

	ch := make(chan store.Event, historyBuffer)
	w.mu.Lock()
	w.history = ch
	w.mu.Unlock()

	// writes outlive cancellation so the terminal event is recorded
	writeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range ch {
			if err := rec.Record(writeCtx, e); err != nil {
				w.logger.Warn("failed to record event", "state", e.State, "error", err)
			}
		}
	}()

	w.logger.Info("recording history")
	return func() {
		w.mu.Lock()
		w.history = nil
		w.mu.Unlock()
		close(ch)
		wg.Wait()
		rec.Close()
	}, nil
}

func (w *Watcher) cancelled(err error) (Outcome, error) {
	w.logger.Info("watch cancelled before polling", "error", err)
	return Outcome{RunID: w.runID, State: StateCancelled, Err: err}, err
}

func (w *Watcher) fatal(err error) (Outcome, error) {
	w.logger.Error("watch failed during setup", "error", err)
	return Outcome{RunID: w.runID, State: StateFatal, Err: err}, err
}

// invokeCallbackSafe calls a status callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Event), ev Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status callback panicked",
				"panic", r,
				"state", ev.State,
				"attempt", ev.Attempt,
			)
		}
	}()
	cb(ev)
}

// portalProber adapts a [Portal] session to the poller.
type portalProber struct {
	portal     Portal
	session    Session
	target     TargetDate
	classifier Classifier
	metrics    *metrics.Metrics
}

func (p *portalProber) Probe(ctx context.Context) (poller.Result, error) {
	text, err := p.portal.SelectDate(ctx, p.session, p.target)
	return p.read(text, err)
}

func (p *portalProber) Reread(ctx context.Context) (poller.Result, error) {
	text, err := p.portal.ReadStatus(ctx, p.session)
	return p.read(text, err)
}

func (p *portalProber) Refresh(ctx context.Context) error {
	return p.portal.Refresh(ctx, p.session)
}

// read classifies one reading. Fatal errors are returned as errors; all
// other faults become results.
func (p *portalProber) read(text string, err error) (poller.Result, error) {
	if IsFatal(err) {
		return poller.Result{Text: text, Err: err}, err
	}
	r := p.classifier.Read(text, err)
	p.metrics.ObserveProbe(string(r.Kind))
	return toPollerResult(r), nil
}
