package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/parkwatch"
	"github.com/jpalmerr/parkwatch/internal/portal"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePortal serves a login form and a booking page for March 2025.
type fakePortal struct {
	mu     sync.Mutex
	status string
	open   bool
	gets   int
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("username") != "skier" || r.PostForm.Get("password") != "secret" {
			_, _ = fmt.Fprint(w, `<html><body><p class="error">bad login</p></body></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		_, _ = fmt.Fprint(w, `<html><body><nav id="account">hi</nav></body></html>`)
	})
	mux.HandleFunc("GET /book", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.gets++
		status, open := f.status, f.open
		f.mu.Unlock()

		if !open {
			_, _ = fmt.Fprint(w, `<html><body><p>Reservations open soon</p></body></html>`)
			return
		}
		_, _ = fmt.Fprint(w, `<html><body><div id="calendar_2025-03">`)
		for d := 1; d <= 31; d++ {
			_, _ = fmt.Fprintf(w, `<div>%d</div>`, d)
		}
		_, _ = fmt.Fprintf(w, `</div><div id="parking-status">
			%s
		</div></body></html>`, status)
	})
	return mux
}

func (f *fakePortal) set(status string, open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.open = status, open
}

func newTestPortal(t *testing.T, f *fakePortal) *Portal {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)

	p, err := New(Config{
		LoginURL:         server.URL + "/login",
		LoggedInSelector: "#account",
		DateURL:          server.URL + "/book?date={{.ISO}}",
		CalendarDay:      "#calendar_{{.Year}}-{{.Month}} > div:nth-child({{.Day}})",
		Timeout:          time.Second,
		RateLimit:        -1,
	}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

var march29 = parkwatch.TargetDate{Year: 2025, Month: time.March, Day: 29}

func TestPortal_SelectDate(t *testing.T) {
	f := &fakePortal{}
	f.set("Car Parking: SOLD OUT", true)
	p := newTestPortal(t, f)

	sess, err := p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	defer func() { _ = sess.Close() }()

	text, err := p.SelectDate(context.Background(), sess, march29)
	if err != nil {
		t.Fatalf("SelectDate() error = %v", err)
	}
	if text != "Car Parking: SOLD OUT" {
		t.Errorf("SelectDate() = %q, want whitespace-collapsed status", text)
	}
	if got := parkwatch.Classify(text).Kind; got != parkwatch.ResultSoldOut {
		t.Errorf("Classify() = %q, want sold_out", got)
	}
}

func TestPortal_RefreshAndReadStatus(t *testing.T) {
	f := &fakePortal{}
	f.set("Car Parking: SOLD OUT", true)
	p := newTestPortal(t, f)

	sess, err := p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	defer func() { _ = sess.Close() }()

	if _, err := p.SelectDate(context.Background(), sess, march29); err != nil {
		t.Fatalf("SelectDate() error = %v", err)
	}

	f.set("Car Parking: 3 SPOTS LEFT", true)

	// without a refresh the cached page still shows the old status
	text, err := p.ReadStatus(context.Background(), sess)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if text != "Car Parking: SOLD OUT" {
		t.Errorf("ReadStatus() before refresh = %q", text)
	}

	if err := p.Refresh(context.Background(), sess); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	text, err = p.ReadStatus(context.Background(), sess)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if text != "Car Parking: 3 SPOTS LEFT" {
		t.Errorf("ReadStatus() after refresh = %q", text)
	}
}

func TestPortal_CalendarNotOpen(t *testing.T) {
	f := &fakePortal{}
	f.set("", false)
	p := newTestPortal(t, f)

	sess, err := p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	defer func() { _ = sess.Close() }()

	_, err = p.SelectDate(context.Background(), sess, march29)
	if !errors.Is(err, parkwatch.ErrElementNotFound) {
		t.Errorf("SelectDate() error = %v, want ErrElementNotFound", err)
	}
	if parkwatch.IsFatal(err) {
		t.Error("closed calendar must not be fatal")
	}
}

func TestPortal_DayNotOffered(t *testing.T) {
	f := &fakePortal{}
	f.set("Car Parking: SOLD OUT", true)
	p := newTestPortal(t, f)

	sess, err := p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	defer func() { _ = sess.Close() }()

	// the fake calendar grid has 31 cells; ask for a 32nd by rendering a
	// selector template that offsets past the end
	p.day, err = portal.NewDateTemplate("calendar_day", "#calendar_{{.Year}}-{{.Month}} > div:nth-child({{add .Day 10}})")
	if err != nil {
		t.Fatalf("template error = %v", err)
	}

	_, err = p.SelectDate(context.Background(), sess, march29)
	if !errors.Is(err, parkwatch.ErrDateNotOffered) {
		t.Errorf("SelectDate() error = %v, want ErrDateNotOffered", err)
	}
	if !parkwatch.IsFatal(err) {
		t.Error("missing day in an open calendar must be fatal")
	}
}

func TestPortal_LoginRejected(t *testing.T) {
	f := &fakePortal{}
	p := newTestPortal(t, f)

	_, err := p.Authenticate(context.Background(), parkwatch.Credentials{Username: "skier", Password: "wrong"})
	if err == nil {
		t.Fatal("expected login error")
	}
}

func TestPortal_MissingCredentials(t *testing.T) {
	f := &fakePortal{}
	p := newTestPortal(t, f)

	_, err := p.Authenticate(context.Background(), parkwatch.Credentials{})
	if !errors.Is(err, parkwatch.ErrMissingCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrMissingCredentials", err)
	}
}

func TestPortal_UnauthenticatedPage(t *testing.T) {
	f := &fakePortal{}
	f.set("Car Parking: SOLD OUT", true)
	p := newTestPortal(t, f)

	// a session that never logged in has no cookie
	client, err := NewClient(0, 1, "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	sess := &session{client: client}

	_, err = p.SelectDate(context.Background(), sess, march29)
	if err == nil {
		t.Fatal("expected error for unauthenticated request")
	}
	if parkwatch.ClassifyFault(err) != parkwatch.FaultUnexpected {
		t.Errorf("ClassifyFault() = %q, want unexpected", parkwatch.ClassifyFault(err))
	}
}

func TestPortal_ReadStatusBeforeSelect(t *testing.T) {
	f := &fakePortal{}
	p := newTestPortal(t, f)

	client, err := NewClient(0, 1, "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = p.ReadStatus(context.Background(), &session{client: client})
	if !errors.Is(err, parkwatch.ErrElementNotFound) {
		t.Errorf("ReadStatus() error = %v, want ErrElementNotFound", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing login url", Config{DateURL: "http://x/{{.ISO}}"}},
		{"missing date url", Config{LoginURL: "http://x/login"}},
		{"bad date url template", Config{LoginURL: "http://x/login", DateURL: "http://x/{{.ISO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, testLogger()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
