package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jpalmerr/parkwatch"
	"github.com/jpalmerr/parkwatch/internal/alert"
	"github.com/jpalmerr/parkwatch/internal/portal/browser"
	"github.com/jpalmerr/parkwatch/internal/portal/web"
)

// BuildOptions converts parsed configuration into Watcher options.
//
// The portal driver and alert sinks are constructed here; the caller adds
// anything else, such as status callbacks.
func BuildOptions(cfg *Config, target parkwatch.TargetDate, creds parkwatch.Credentials, logger *slog.Logger) ([]parkwatch.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p, err := BuildPortal(cfg.Portal, logger)
	if err != nil {
		return nil, err
	}

	unit := cfg.TimeUnit.Duration()
	opts := []parkwatch.Option{
		parkwatch.WithPortal(p),
		parkwatch.WithCredentials(creds),
		parkwatch.WithTarget(target),
		parkwatch.WithClassifier(BuildClassifier(cfg)),
		parkwatch.WithTimeUnit(unit),
		parkwatch.WithDelays(
			units(cfg.Delays.SoldOut, unit),
			units(cfg.Delays.NotFound, unit),
			units(cfg.Delays.StaleRefetch, unit),
		),
		parkwatch.WithMaxStaleReads(cfg.MaxStaleReads),
		parkwatch.WithLoginAttempts(cfg.Login.Attempts),
		parkwatch.WithPort(cfg.Server.Port),
		parkwatch.WithHistory(cfg.History.DatabaseURL),
		parkwatch.WithLogger(logger),
	}

	if cfg.Title != "" {
		opts = append(opts, parkwatch.WithTitle(cfg.Title))
	}

	if sink := BuildAlertSink(cfg.Alert, logger); sink != nil {
		opts = append(opts, parkwatch.WithAlertSink(sink))
	}

	return opts, nil
}

// BuildClassifier returns the classifier described by the match settings.
func BuildClassifier(cfg *Config) parkwatch.Classifier {
	// Parse has already rejected unknown modes.
	mode, _ := parkwatch.ParseMatchMode(cfg.MatchMode)
	return parkwatch.Classifier{
		Mode:             mode,
		SoldOutMarker:    cfg.SoldOutMarker,
		AvailableMarkers: cfg.AvailableMarkers,
	}
}

// BuildPortal constructs the configured portal driver.
func BuildPortal(pc PortalConfig, logger *slog.Logger) (parkwatch.Portal, error) {
	switch pc.Driver {
	case DriverBrowser, "":
		p, err := browser.New(browser.Config{
			LoginURL:      pc.LoginURL,
			BookingURL:    pc.BookingURL,
			LoginButton:   pc.LoginButton,
			UsernameField: pc.UsernameField,
			PasswordField: pc.PasswordField,
			CalendarMonth: pc.CalendarMonth,
			CalendarDay:   pc.CalendarDay,
			StatusElement: pc.StatusElement,
			PageTimeout:   pc.Timeout.Duration(),
			SettleDelay:   pc.SettleDelay.Duration(),
			Headless:      pc.Headless,
			UserAgent:     pc.UserAgent,
			ExecPath:      pc.ExecPath,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case DriverHTTP:
		p, err := web.New(web.Config{
			LoginURL:         pc.LoginURL,
			UsernameField:    pc.UsernameField,
			PasswordField:    pc.PasswordField,
			LoggedInSelector: pc.LoggedInSelector,
			DateURL:          pc.DateURL,
			CalendarMonth:    pc.CalendarMonth,
			CalendarDay:      pc.CalendarDay,
			StatusElement:    pc.StatusElement,
			Timeout:          pc.Timeout.Duration(),
			RateLimit:        pc.RateLimit,
			Burst:            pc.Burst,
			UserAgent:        pc.UserAgent,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown portal driver %q", pc.Driver)
	}
}

// BuildAlertSink returns the configured alert sinks combined into one, or
// nil when every sink is disabled.
func BuildAlertSink(ac AlertConfig, logger *slog.Logger) parkwatch.AlertSink {
	var sinks []parkwatch.AlertSink

	if ac.BellEnabled() && ac.Repetitions > 0 {
		sinks = append(sinks, alert.NewBell(os.Stderr, ac.Repetitions, ac.Interval.Duration()))
	}
	if ac.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhook(ac.WebhookURL, ac.WebhookTimeout.Duration()))
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return alert.NewMulti(logger, sinks...)
	}
}

// units converts a delay counted in time units to a duration.
func units(n float64, unit time.Duration) time.Duration {
	return time.Duration(n * float64(unit))
}
