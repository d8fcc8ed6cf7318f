package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jpalmerr/parkwatch"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want parkwatch.FaultKind
	}{
		{"deadline", context.DeadlineExceeded, parkwatch.FaultTimeout},
		{"wrapped deadline", fmt.Errorf("wait visible: %w", context.DeadlineExceeded), parkwatch.FaultTimeout},
		{"stale node", errors.New("Could not find node with given id (-32000)"), parkwatch.FaultStaleReference},
		{"detached node", errors.New("Node is detached from document"), parkwatch.FaultStaleReference},
		{"other", errors.New("net::ERR_NAME_NOT_RESOLVED"), parkwatch.FaultUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parkwatch.ClassifyFault(mapError(tt.err))
			if got != tt.want {
				t.Errorf("ClassifyFault(mapError(%v)) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestMapError_KeepsCause(t *testing.T) {
	cause := errors.New("Could not find node with given id")
	err := mapError(cause)
	if !errors.Is(err, cause) {
		t.Errorf("mapped error %v does not wrap the cause", err)
	}
}

func TestIsXPath(t *testing.T) {
	tests := []struct {
		selector string
		xpath    bool
	}{
		{"/html/body/div[2]", true},
		{"  //div[@id='x']", true},
		{"#calendar_2025-03", false},
		{"div.status", false},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			if got := isXPath(tt.selector); got != tt.xpath {
				t.Errorf("isXPath(%q) = %v, want %v", tt.selector, got, tt.xpath)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if p.cfg.LoginURL != DefaultLoginURL {
		t.Errorf("LoginURL = %q, want %q", p.cfg.LoginURL, DefaultLoginURL)
	}
	if p.cfg.PageTimeout != DefaultPageTimeout {
		t.Errorf("PageTimeout = %v, want %v", p.cfg.PageTimeout, DefaultPageTimeout)
	}
	if p.cfg.Headless {
		t.Error("Headless should default to false")
	}

	date := parkwatch.TargetDate{Year: 2025, Month: time.March, Day: 29}
	got, err := p.day.Render(date)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "#calendar_2025-03 > div:nth-child(29)"; got != want {
		t.Errorf("day selector = %q, want %q", got, want)
	}
}

func TestNew_InvalidTemplate(t *testing.T) {
	_, err := New(Config{CalendarDay: "#calendar_{{.Year"}, testLogger())
	if err == nil {
		t.Error("expected error for invalid calendar template")
	}
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	p, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.Authenticate(context.Background(), parkwatch.Credentials{Username: "user"})
	if !errors.Is(err, parkwatch.ErrMissingCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrMissingCredentials", err)
	}
}

type otherSession struct{}

func (otherSession) Close() error { return nil }

func TestPortal_RejectsForeignSession(t *testing.T) {
	p, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := p.ReadStatus(context.Background(), otherSession{}); err == nil {
		t.Error("ReadStatus() with foreign session should fail")
	}
	if err := p.Refresh(context.Background(), otherSession{}); err == nil {
		t.Error("Refresh() with foreign session should fail")
	}
}

// recordedRun is one call made through Portal.runActions.
type recordedRun struct {
	ctx         context.Context
	actions     int
	hasDeadline bool
}

// recordRuns replaces the chromedp runner with one that records its calls
// and returns the errors in order, then nil.
func recordRuns(p *Portal, errs ...error) *[]recordedRun {
	var runs []recordedRun
	p.runActions = func(ctx context.Context, actions ...chromedp.Action) error {
		_, hasDeadline := ctx.Deadline()
		runs = append(runs, recordedRun{ctx: ctx, actions: len(actions), hasDeadline: hasDeadline})
		if len(errs) > 0 {
			err := errs[0]
			errs = errs[1:]
			return err
		}
		return nil
	}
	return &runs
}

func TestAuthenticate_StartsBrowserOnTabContext(t *testing.T) {
	p, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	runs := recordRuns(p)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := p.Authenticate(ctx, parkwatch.Credentials{Username: "skier", Password: "powder"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	defer sess.Close()

	s := sess.(*session)
	if len(*runs) != 2 {
		t.Fatalf("runs = %d, want 2 (start, login)", len(*runs))
	}

	first := (*runs)[0]
	if first.ctx != s.ctx {
		t.Error("first run should use the tab context so the browser lives as long as the session")
	}
	if first.hasDeadline {
		t.Error("first run should carry no deadline")
	}
	if first.actions != 0 {
		t.Errorf("first run actions = %d, want 0", first.actions)
	}

	login := (*runs)[1]
	if !login.hasDeadline {
		t.Error("login run should be bounded by a timeout")
	}
	if login.actions == 0 {
		t.Error("login run should carry the login actions")
	}

	// the tab must survive the end of Authenticate
	if s.ctx.Err() != nil {
		t.Errorf("tab context done after Authenticate: %v", s.ctx.Err())
	}
}

func TestAuthenticate_StartFailure(t *testing.T) {
	p, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	runs := recordRuns(p, errors.New("exec: \"google-chrome\": executable file not found in $PATH"))

	_, err = p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "powder"})
	if err == nil {
		t.Fatal("Authenticate() expected error when Chrome cannot start")
	}
	if len(*runs) != 1 {
		t.Errorf("runs = %d, want 1 (no login after a failed start)", len(*runs))
	}
}

func TestRun_TimeoutDoesNotEndTab(t *testing.T) {
	p, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	recordRuns(p)

	sess, err := p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "powder"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	defer sess.Close()

	if _, err := p.ReadStatus(context.Background(), sess); err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if err := sess.(*session).ctx.Err(); err != nil {
		t.Errorf("tab context done after a timed run: %v", err)
	}
}
