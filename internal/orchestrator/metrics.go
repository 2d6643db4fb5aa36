package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus collectors, grounded on
// vigil's internal/triage.Metrics shape (CounterVec/HistogramVec per
// outcome, registered on a dedicated registry at construction time).
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	ServiceErrors   *prometheus.CounterVec

	SessionImagesTotal  prometheus.Counter
	SessionExposureSecs prometheus.Counter

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewMetrics builds and registers the orchestrator's collectors on a
// fresh registry; cmd/nightwatchd mounts Registry() behind /metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightwatch_commands_total",
			Help: "Total tool commands executed, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nightwatch_command_duration_seconds",
			Help:    "Duration of tool command executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"tool"}),
		ServiceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightwatch_service_errors_total",
			Help: "Total errors reported by each registered service.",
		}, []string{"service"}),
		SessionImagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_session_images_total",
			Help: "Total images captured across all sessions.",
		}),
		SessionExposureSecs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_session_exposure_seconds_total",
			Help: "Total exposure time recorded across all sessions, in seconds.",
		}),
		starts: make(map[string]time.Time),
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.ServiceErrors,
		m.SessionImagesTotal,
		m.SessionExposureSecs,
	)

	return m
}

// Registry returns the Prometheus registry the collectors are bound to.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCommand records the outcome and latency of one tool invocation.
func (m *Metrics) ObserveCommand(tool string, dur time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.CommandsTotal.WithLabelValues(tool, outcome).Inc()
	m.CommandDuration.WithLabelValues(tool).Observe(dur.Seconds())
}

// ObserveServiceError increments the per-service error counter.
func (m *Metrics) ObserveServiceError(service string) {
	m.ServiceErrors.WithLabelValues(service).Inc()
}

// ObserveSessionEnd folds one ended session's image count and total
// exposure time into the cumulative counters.
func (m *Metrics) ObserveSessionEnd(images int, totalExposureSec float64) {
	m.SessionImagesTotal.Add(float64(images))
	m.SessionExposureSecs.Add(totalExposureSec)
}

// MarkServiceStart records a service's start instant for uptime
// reporting, keyed by the name it was registered under in Registry.
func (m *Metrics) MarkServiceStart(service string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts[service] = at
}

// Uptime returns how long service has been running since its last
// MarkServiceStart call, or zero if it was never marked.
func (m *Metrics) Uptime(service string, now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, ok := m.starts[service]
	if !ok {
		return 0
	}
	return now.Sub(start)
}
