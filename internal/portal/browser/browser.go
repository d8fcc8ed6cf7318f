// Package browser implements a [parkwatch.Portal] that drives a real Chrome
// instance through the DevTools protocol.
//
// The browser is visible by default so the operator can finish a booking by
// hand once the monitor reports availability.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/jpalmerr/parkwatch"
	"github.com/jpalmerr/parkwatch/internal/portal"
)

// Default locations and selectors of the resort parking portal. Selectors
// starting with "/" are XPath expressions; anything else is CSS.
const (
	DefaultLoginURL      = "https://parking.crystalmountainresort.com/login/"
	DefaultBookingURL    = "https://parking.crystalmountainresort.com/"
	DefaultLoginButton   = "/html/body/div[1]/div[1]/div/div[1]/button[1]"
	DefaultUsernameField = "/html/body/div[1]/div[1]/div/div[2]/form[1]/div[2]/div/input[1]"
	DefaultPasswordField = "/html/body/div[1]/div[1]/div/div[2]/form[1]/div[2]/div/input[2]"
	DefaultCalendarMonth = "#calendar_{{.Year}}-{{.Month}}"
	DefaultCalendarDay   = "#calendar_{{.Year}}-{{.Month}} > div:nth-child({{.Day}})"
	DefaultStatusElement = "/html/body/div[2]/div[5]/div/div[1]"

	DefaultPageTimeout = 10 * time.Second
	DefaultSettleDelay = 2 * time.Second
)

// Config configures a browser [Portal]. Zero fields take the defaults above.
type Config struct {
	LoginURL   string
	BookingURL string

	LoginButton   string
	UsernameField string
	PasswordField string

	// CalendarMonth and CalendarDay are date templates, see
	// [portal.DateTemplate]. A missing month container means the calendar
	// is not open yet; a missing day inside an open month is fatal.
	CalendarMonth string
	CalendarDay   string
	StatusElement string

	// PageTimeout bounds every wait for an element.
	PageTimeout time.Duration

	// SettleDelay is waited after navigation and clicks for scripts to
	// finish rendering. Negative disables it.
	SettleDelay time.Duration

	Headless  bool
	UserAgent string

	// ExecPath overrides the Chrome binary. Empty searches the usual
	// locations.
	ExecPath string
}

func (c *Config) applyDefaults() {
	setDefault(&c.LoginURL, DefaultLoginURL)
	setDefault(&c.BookingURL, DefaultBookingURL)
	setDefault(&c.LoginButton, DefaultLoginButton)
	setDefault(&c.UsernameField, DefaultUsernameField)
	setDefault(&c.PasswordField, DefaultPasswordField)
	setDefault(&c.CalendarMonth, DefaultCalendarMonth)
	setDefault(&c.CalendarDay, DefaultCalendarDay)
	setDefault(&c.StatusElement, DefaultStatusElement)
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	switch {
	case c.SettleDelay == 0:
		c.SettleDelay = DefaultSettleDelay
	case c.SettleDelay < 0:
		c.SettleDelay = 0
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// Portal drives the reservation site in Chrome.
type Portal struct {
	cfg    Config
	month  *portal.DateTemplate
	day    *portal.DateTemplate
	logger *slog.Logger

	// runActions is chromedp.Run outside tests.
	runActions func(ctx context.Context, actions ...chromedp.Action) error
}

// New creates a browser [Portal]. No browser is started until Authenticate.
func New(cfg Config, logger *slog.Logger) (*Portal, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	month, err := portal.NewDateTemplate("calendar_month", cfg.CalendarMonth)
	if err != nil {
		return nil, err
	}
	day, err := portal.NewDateTemplate("calendar_day", cfg.CalendarDay)
	if err != nil {
		return nil, err
	}

	return &Portal{
		cfg:        cfg,
		month:      month,
		day:        day,
		logger:     logger,
		runActions: chromedp.Run,
	}, nil
}

// session is a live browser tab.
type session struct {
	ctx         context.Context // tab context; cancelling it closes the tab
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closeOnce   sync.Once
}

// Close shuts the browser down. It is safe to call more than once.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Portal) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("start-maximized", true),
	)
	if p.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.cfg.UserAgent))
	}
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	return opts
}

// Authenticate starts Chrome and logs in. The browser outlives ctx; it is
// released by closing the returned session.
func (p *Portal) Authenticate(ctx context.Context, creds parkwatch.Credentials) (parkwatch.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), p.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		p.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
	}))
	s := &session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	if err := p.start(ctx, s); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	p.logger.Info("opening login page", "url", p.cfg.LoginURL)
	err := p.run(ctx, s, p.cfg.PageTimeout*3,
		chromedp.Navigate(p.cfg.LoginURL),
		chromedp.WaitVisible(p.cfg.LoginButton, queryBy(p.cfg.LoginButton)),
		chromedp.Click(p.cfg.LoginButton, queryBy(p.cfg.LoginButton)),
		chromedp.WaitVisible(p.cfg.UsernameField, queryBy(p.cfg.UsernameField)),
		chromedp.SendKeys(p.cfg.UsernameField, creds.Username, queryBy(p.cfg.UsernameField)),
		chromedp.SendKeys(p.cfg.PasswordField, creds.Password, queryBy(p.cfg.PasswordField)),
		chromedp.Submit(p.cfg.PasswordField, queryBy(p.cfg.PasswordField)),
		chromedp.Sleep(p.cfg.SettleDelay),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	p.logger.Info("logged in")
	return s, nil
}

// SelectDate opens the booking page, clicks the calendar cell for date and
// returns the status text.
func (p *Portal) SelectDate(ctx context.Context, sess parkwatch.Session, date parkwatch.TargetDate) (string, error) {
	s, err := asSession(sess)
	if err != nil {
		return "", err
	}
	monthSel, err := p.month.Render(date)
	if err != nil {
		return "", err
	}
	daySel, err := p.day.Render(date)
	if err != nil {
		return "", err
	}

	err = p.run(ctx, s, p.cfg.PageTimeout,
		chromedp.Navigate(p.cfg.BookingURL),
		chromedp.Sleep(p.cfg.SettleDelay),
	)
	if err != nil {
		return "", err
	}

	err = p.run(ctx, s, p.cfg.PageTimeout, chromedp.WaitReady(monthSel, queryBy(monthSel)))
	if err != nil {
		if errors.Is(err, parkwatch.ErrTimeout) {
			return "", fmt.Errorf("calendar for %d-%02d not open: %w", date.Year, int(date.Month), parkwatch.ErrElementNotFound)
		}
		return "", err
	}

	var cells []*cdp.Node
	err = p.run(ctx, s, p.cfg.PageTimeout, chromedp.Nodes(daySel, &cells, queryBy(daySel), chromedp.AtLeast(0)))
	if err != nil {
		return "", err
	}
	if len(cells) == 0 {
		return "", fmt.Errorf("%s: no calendar cell %q: %w", date, daySel, parkwatch.ErrDateNotOffered)
	}

	var text string
	err = p.run(ctx, s, p.cfg.PageTimeout,
		chromedp.Click(daySel, queryBy(daySel)),
		chromedp.Sleep(p.cfg.SettleDelay),
		chromedp.WaitVisible(p.cfg.StatusElement, queryBy(p.cfg.StatusElement)),
		chromedp.Sleep(p.cfg.SettleDelay/2),
		chromedp.Text(p.cfg.StatusElement, &text, queryBy(p.cfg.StatusElement)),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

// ReadStatus reads the status element again.
func (p *Portal) ReadStatus(ctx context.Context, sess parkwatch.Session) (string, error) {
	s, err := asSession(sess)
	if err != nil {
		return "", err
	}
	var text string
	err = p.run(ctx, s, p.cfg.PageTimeout,
		chromedp.Text(p.cfg.StatusElement, &text, queryBy(p.cfg.StatusElement)),
	)
	return text, err
}

// Refresh reloads the current page.
func (p *Portal) Refresh(ctx context.Context, sess parkwatch.Session) error {
	s, err := asSession(sess)
	if err != nil {
		return err
	}
	return p.run(ctx, s, p.cfg.PageTimeout,
		chromedp.Reload(),
		chromedp.Sleep(p.cfg.SettleDelay),
	)
}

// start launches Chrome. chromedp binds the browser process to the context
// of the first Run on a tab, so that call gets the tab context itself with
// no deadline. Cancelling ctx while Chrome starts closes the tab.
func (p *Portal) start(ctx context.Context, s *session) error {
	stop := context.AfterFunc(ctx, s.cancelTab)
	defer stop()

	if err := p.runActions(s.ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// run executes actions in the session tab. The actions are bounded by
// timeout and abort when ctx is cancelled, without closing the tab.
func (p *Portal) run(ctx context.Context, s *session, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := p.runActions(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return mapError(err)
}

func asSession(sess parkwatch.Session) (*session, error) {
	s, ok := sess.(*session)
	if !ok || s == nil {
		return nil, fmt.Errorf("browser portal: unexpected session type %T", sess)
	}
	return s, nil
}

// queryBy picks XPath search for selectors starting with "/" and CSS
// otherwise.
func queryBy(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func isXPath(selector string) bool {
	return strings.HasPrefix(strings.TrimSpace(selector), "/")
}

// staleMarkers are DevTools error fragments meaning a node went away
// between lookup and use.
var staleMarkers = []string{
	"could not find node with given id",
	"no node with given id",
	"node with given id does not belong to the document",
	"node is detached from document",
	"cannot find context with specified id",
}

// mapError wraps DevTools failures with the parkwatch fault markers.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", parkwatch.ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %w", parkwatch.ErrStaleReference, err)
		}
	}
	return err
}
