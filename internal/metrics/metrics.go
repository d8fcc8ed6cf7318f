// Package metrics exposes monitor activity as Prometheus collectors.
//
// Collectors live on a private registry so several watchers in one process,
// or tests, never collide on the default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "parkwatch"
	subsystem = "monitor"
)

// States reported by the state gauge.
var states = []string{"idle", "probing", "retrying", "success", "fatal", "cancelled"}

// Metrics holds the watcher collectors.
type Metrics struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	state         *prometheus.GaugeVec
	attempt       prometheus.Gauge
	elapsed       prometheus.Gauge
	loginAttempts *prometheus.CounterVec
	alertsTotal   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		probesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "probes_total",
				Help:      "Total number of classified probe results by result kind",
			},
			[]string{"result"},
		),

		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "retries_total",
				Help:      "Total number of retries by reason",
			},
			[]string{"reason"},
		),

		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "state",
				Help:      "Current monitor state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),

		attempt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempt",
			Help:      "Current probe attempt number",
		}),

		elapsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "elapsed_seconds",
			Help:      "Time since polling started in seconds",
		}),

		loginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Total number of portal login attempts by outcome",
			},
			[]string{"outcome"},
		),

		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of alert sink notifications by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.SetState("idle")
	return m
}

// ObserveProbe counts one classified probe result.
func (m *Metrics) ObserveProbe(result string) {
	m.probesTotal.WithLabelValues(result).Inc()
}

// ObserveRetry counts one retry.
func (m *Metrics) ObserveRetry(reason string) {
	m.retriesTotal.WithLabelValues(reason).Inc()
}

// SetState marks state as the active state.
func (m *Metrics) SetState(state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// SetProgress records the current attempt number and elapsed time.
func (m *Metrics) SetProgress(attempt int, elapsed time.Duration) {
	m.attempt.Set(float64(attempt))
	m.elapsed.Set(elapsed.Seconds())
}

// ObserveLogin counts a login attempt. ok reports whether it succeeded.
func (m *Metrics) ObserveLogin(ok bool) {
	m.loginAttempts.WithLabelValues(outcome(ok)).Inc()
}

// ObserveAlert counts an alert sink notification.
func (m *Metrics) ObserveAlert(ok bool) {
	m.alertsTotal.WithLabelValues(outcome(ok)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
