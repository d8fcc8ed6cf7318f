// Package web implements a [parkwatch.Portal] over plain HTTP.
//
// It logs in by posting a form, keeps the session in a cookie jar and reads
// the calendar and status element from server-rendered HTML with goquery.
// It suits portals that do not need JavaScript, and local mock portals.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/parkwatch"
	"github.com/jpalmerr/parkwatch/internal/portal"
)

// Defaults applied to zero [Config] fields.
const (
	DefaultUsernameField = "username"
	DefaultPasswordField = "password"
	DefaultCalendarMonth = "#calendar_{{.Year}}-{{.Month}}"
	DefaultCalendarDay   = "#calendar_{{.Year}}-{{.Month}} > div:nth-child({{.Day}})"
	DefaultStatusElement = "#parking-status"
	DefaultTimeout       = 10 * time.Second
	DefaultRateLimit     = 1.0
	DefaultBurst         = 2
)

// Config configures a web [Portal].
type Config struct {
	// LoginURL receives the login form post.
	LoginURL string

	// UsernameField and PasswordField are the form field names.
	UsernameField string
	PasswordField string

	// LoggedInSelector, if set, must match the page returned after login
	// for the login to count as successful.
	LoggedInSelector string

	// DateURL is a date template for the page showing the target date,
	// e.g. "https://portal.example/book?date={{.ISO}}".
	DateURL string

	// CalendarMonth and CalendarDay are CSS date templates. CalendarDay
	// may be empty to skip the day check.
	CalendarMonth string
	CalendarDay   string

	// StatusElement is the CSS selector of the status element.
	StatusElement string

	Timeout time.Duration

	// RateLimit is the maximum request rate per second; Burst the bucket
	// size. RateLimit < 0 disables pacing.
	RateLimit float64
	Burst     int

	UserAgent string
}

func (c *Config) applyDefaults() {
	if c.UsernameField == "" {
		c.UsernameField = DefaultUsernameField
	}
	if c.PasswordField == "" {
		c.PasswordField = DefaultPasswordField
	}
	if c.CalendarMonth == "" {
		c.CalendarMonth = DefaultCalendarMonth
	}
	if c.StatusElement == "" {
		c.StatusElement = DefaultStatusElement
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
}

// Portal reads the reservation site with HTTP requests.
type Portal struct {
	cfg     Config
	dateURL *portal.DateTemplate
	month   *portal.DateTemplate
	day     *portal.DateTemplate
	logger  *slog.Logger
}

// New creates a web [Portal].
func New(cfg Config, logger *slog.Logger) (*Portal, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoginURL == "" {
		return nil, errors.New("web portal: login URL is required")
	}
	if cfg.DateURL == "" {
		return nil, errors.New("web portal: date URL is required")
	}

	p := &Portal{cfg: cfg, logger: logger}

	var err error
	if p.dateURL, err = portal.NewDateTemplate("date_url", cfg.DateURL); err != nil {
		return nil, err
	}
	if p.month, err = portal.NewDateTemplate("calendar_month", cfg.CalendarMonth); err != nil {
		return nil, err
	}
	if cfg.CalendarDay != "" {
		if p.day, err = portal.NewDateTemplate("calendar_day", cfg.CalendarDay); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// session is a cookie-jar client plus the last page read.
type session struct {
	client *Client

	mu      sync.Mutex
	lastURL string
	lastDoc *goquery.Document
	closed  bool
}

// Close releases idle connections. It is safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.client.Close()
	}
	return nil
}

// Authenticate posts the login form.
func (p *Portal) Authenticate(ctx context.Context, creds parkwatch.Credentials) (parkwatch.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	rps := p.cfg.RateLimit
	if rps < 0 {
		rps = 0
	}
	client, err := NewClient(rps, p.cfg.Burst, p.cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	s := &session{client: client}

	form := url.Values{}
	form.Set(p.cfg.UsernameField, creds.Username)
	form.Set(p.cfg.PasswordField, creds.Password)

	p.logger.Info("posting login form", "url", p.cfg.LoginURL)
	resp := client.PostForm(ctx, p.cfg.LoginURL, form, p.cfg.Timeout)
	if resp.Error != nil {
		_ = s.Close()
		return nil, fmt.Errorf("login: %w", resp.Error)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = s.Close()
		return nil, fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	if p.cfg.LoggedInSelector != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("login: parse response: %w", err)
		}
		if doc.Find(p.cfg.LoggedInSelector).Length() == 0 {
			_ = s.Close()
			return nil, errors.New("login: rejected by portal")
		}
	}

	p.logger.Info("logged in")
	return s, nil
}

// SelectDate fetches the page for date and returns the status text.
func (p *Portal) SelectDate(ctx context.Context, sess parkwatch.Session, date parkwatch.TargetDate) (string, error) {
	s, err := asSession(sess)
	if err != nil {
		return "", err
	}
	pageURL, err := p.dateURL.Render(date)
	if err != nil {
		return "", err
	}

	doc, err := p.fetch(ctx, s, pageURL)
	if err != nil {
		return "", err
	}

	monthSel, err := p.month.Render(date)
	if err != nil {
		return "", err
	}
	month := doc.Find(monthSel)
	if month.Length() == 0 {
		return "", fmt.Errorf("calendar for %d-%02d not open: %w", date.Year, int(date.Month), parkwatch.ErrElementNotFound)
	}
	if p.day != nil {
		daySel, err := p.day.Render(date)
		if err != nil {
			return "", err
		}
		if doc.Find(daySel).Length() == 0 {
			return "", fmt.Errorf("%s: no calendar cell %q: %w", date, daySel, parkwatch.ErrDateNotOffered)
		}
	}

	return p.statusText(doc)
}

// ReadStatus reads the status element from the last fetched page.
func (p *Portal) ReadStatus(ctx context.Context, sess parkwatch.Session) (string, error) {
	s, err := asSession(sess)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	doc := s.lastDoc
	s.mu.Unlock()
	if doc == nil {
		return "", fmt.Errorf("no page loaded: %w", parkwatch.ErrElementNotFound)
	}
	return p.statusText(doc)
}

// Refresh fetches the last page again.
func (p *Portal) Refresh(ctx context.Context, sess parkwatch.Session) error {
	s, err := asSession(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	last := s.lastURL
	s.mu.Unlock()
	if last == "" {
		return nil
	}
	_, err = p.fetch(ctx, s, last)
	return err
}

func (p *Portal) fetch(ctx context.Context, s *session, pageURL string) (*goquery.Document, error) {
	resp := s.client.Get(ctx, pageURL, p.cfg.Timeout)
	if resp.Error != nil {
		return nil, resp.Error
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: status %d: %w", pageURL, resp.StatusCode, parkwatch.ErrElementNotFound)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("GET %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	s.mu.Lock()
	s.lastURL = pageURL
	s.lastDoc = doc
	s.mu.Unlock()
	return doc, nil
}

func (p *Portal) statusText(doc *goquery.Document) (string, error) {
	sel := doc.Find(p.cfg.StatusElement)
	if sel.Length() == 0 {
		return "", fmt.Errorf("selector %q: %w", p.cfg.StatusElement, parkwatch.ErrElementNotFound)
	}
	return strings.Join(strings.Fields(sel.First().Text()), " "), nil
}

func asSession(sess parkwatch.Session) (*session, error) {
	s, ok := sess.(*session)
	if !ok || s == nil {
		return nil, fmt.Errorf("web portal: unexpected session type %T", sess)
	}
	return s, nil
}
