package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "speechcore"

// Metrics contains the runtime-level metrics shared by every component.
// Component-specific collectors are registered separately through
// MetricsRegistrar.
type Metrics struct {
	ComponentStatus *prometheus.GaugeVec
	TasksTotal      *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	AudioChunks     *prometheus.CounterVec
	AudioBytes      *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// NewMetrics creates the core runtime metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "total",
				Help:      "Tasks that reached a terminal state, by lane and outcome",
			},
			[]string{"lane", "outcome"},
		),

		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "duration_seconds",
				Help:      "Task execution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"lane"},
		),

		AudioChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audio",
				Name:      "chunks_total",
				Help:      "Audio chunks forwarded to processors",
			},
			[]string{"component"},
		),

		AudioBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audio",
				Name:      "bytes_total",
				Help:      "Audio bytes forwarded to processors",
			},
			[]string{"component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "class"},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Audio sessions currently started",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ComponentStatus,
		c.TasksTotal,
		c.TaskDuration,
		c.AudioChunks,
		c.AudioBytes,
		c.ErrorsTotal,
		c.ActiveSessions,
	}
}

// RecordComponentStatus updates the component status metric
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordTask counts a task outcome and, for executed tasks, its duration
func (c *Metrics) RecordTask(lane, outcome string, duration time.Duration) {
	c.TasksTotal.WithLabelValues(lane, outcome).Inc()
	if duration > 0 {
		c.TaskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	}
}

// RecordAudio counts one chunk of n bytes forwarded by component
func (c *Metrics) RecordAudio(component string, n int) {
	c.AudioChunks.WithLabelValues(component).Inc()
	c.AudioBytes.WithLabelValues(component).Add(float64(n))
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// SessionStarted increments the active session gauge
func (c *Metrics) SessionStarted() { c.ActiveSessions.Inc() }

// SessionStopped decrements the active session gauge
func (c *Metrics) SessionStopped() { c.ActiveSessions.Dec() }
