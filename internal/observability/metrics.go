package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Async command submissions and their classified outcomes
//   - Command round-trip latency (submit through terminal poll)
//   - Reconciliation ticks per feed and their results
//   - Approval notifications delivered to Slack
//   - Poller self-disables when a remote feature looks unavailable
type Metrics struct {
	// CommandCounter counts executed commands by outcome kind.
	// Labels: outcome (success|remote_error|timeout|submission_failed|transport_error)
	CommandCounter *prometheus.CounterVec

	// CommandDuration measures command round-trip latency in seconds.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 20s, 30s, 60s
	CommandDuration prometheus.Histogram

	// PollTicks counts reconciliation ticks by feed and result.
	// Labels: feed (elevation|device), result (ok|empty|fetch_failed)
	PollTicks *prometheus.CounterVec

	// NotificationCounter counts approval notifications by feed and status.
	// Labels: feed, status (sent|failed)
	NotificationCounter *prometheus.CounterVec

	// PollerDisabled counts self-disable transitions by feed.
	// Labels: feed
	PollerDisabled *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. This should be called once at application startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered with the given registerer.
// Tests use this with an isolated registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CommandCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_commands_total",
				Help: "Total number of async commands executed by outcome kind",
			},
			[]string{"outcome"},
		),

		CommandDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_command_duration_seconds",
				Help:    "Round-trip duration of async commands in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),

		PollTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_poll_ticks_total",
				Help: "Total number of reconciliation ticks by feed and result",
			},
			[]string{"feed", "result"},
		),

		NotificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_notifications_total",
				Help: "Total number of approval notifications by feed and status",
			},
			[]string{"feed", "status"},
		),

		PollerDisabled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_poller_disabled_total",
				Help: "Total number of poller self-disable transitions by feed",
			},
			[]string{"feed"},
		),
	}
}

// CommandExecuted records a command outcome and its duration.
func (m *Metrics) CommandExecuted(outcome string, durationSeconds float64) {
	m.CommandCounter.WithLabelValues(outcome).Inc()
	m.CommandDuration.Observe(durationSeconds)
}

// PollTick records the result of one reconciliation tick.
func (m *Metrics) PollTick(feed, result string) {
	m.PollTicks.WithLabelValues(feed, result).Inc()
}

// NotificationSent records a delivered notification.
func (m *Metrics) NotificationSent(feed string) {
	m.NotificationCounter.WithLabelValues(feed, "sent").Inc()
}

// NotificationFailed records a failed notification.
func (m *Metrics) NotificationFailed(feed string) {
	m.NotificationCounter.WithLabelValues(feed, "failed").Inc()
}

// PollerSelfDisabled records a self-disable transition for a feed.
func (m *Metrics) PollerSelfDisabled(feed string) {
	m.PollerDisabled.WithLabelValues(feed).Inc()
}
