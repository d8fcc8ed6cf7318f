// Package alert provides [parkwatch.AlertSink] implementations.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/parkwatch"
)

// Bell defaults.
const (
	DefaultRepetitions = 10
	DefaultInterval    = time.Second
)

// Bell rings the terminal bell a fixed number of times.
//
// Each pulse writes the BEL character and a short message to the writer.
// Notify blocks until every pulse is written or ctx is cancelled, so its
// duration is bounded by Repetitions x Interval.
type Bell struct {
	w           io.Writer
	repetitions int
	interval    time.Duration
}

// NewBell creates a [Bell] writing to w. Non-positive repetitions or a
// negative interval select the defaults.
func NewBell(w io.Writer, repetitions int, interval time.Duration) *Bell {
	if repetitions <= 0 {
		repetitions = DefaultRepetitions
	}
	if interval < 0 {
		interval = DefaultInterval
	}
	return &Bell{w: w, repetitions: repetitions, interval: interval}
}

// Notify rings the bell.
func (b *Bell) Notify(ctx context.Context, a parkwatch.Alert) error {
	for i := 0; i < b.repetitions; i++ {
		if i > 0 {
			if err := sleep(ctx, b.interval); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(b.w, "\a[%s] availability for %s: %s\n", a.At.Format("15:04:05"), a.Target, a.Text); err != nil {
			return fmt.Errorf("bell: %w", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
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

// webhookPayload is the JSON body posted by [Webhook].
type webhookPayload struct {
	RunID    string    `json:"run_id"`
	Target   string    `json:"target"`
	Text     string    `json:"text"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// Webhook posts the alert as JSON to a URL.
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhook creates a [Webhook] posting to url with a per-request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{}, timeout: timeout}
}

// Notify posts the alert. Non-2xx responses are errors.
func (w *Webhook) Notify(ctx context.Context, a parkwatch.Alert) error {
	body, err := json.Marshal(webhookPayload{
		RunID:    a.RunID,
		Target:   a.Target.String(),
		Text:     a.Text,
		Attempts: a.Attempts,
		At:       a.At,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Multi notifies every sink in order. A failing sink does not stop the
// others; all errors are joined.
type Multi struct {
	sinks  []parkwatch.AlertSink
	logger *slog.Logger
}

// NewMulti creates a [Multi]. Nil sinks are skipped.
func NewMulti(logger *slog.Logger, sinks ...parkwatch.AlertSink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify calls every sink.
func (m *Multi) Notify(ctx context.Context, a parkwatch.Alert) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Notify(ctx, a); err != nil {
			m.logger.Warn("alert sink failed", "sink", i, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
