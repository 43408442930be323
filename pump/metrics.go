package pump

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/speechcore/metric"
)

// pumpMetrics holds Prometheus metrics for pump operation. A nil
// *pumpMetrics records nothing.
type pumpMetrics struct {
	component     string
	transitions   *prometheus.CounterVec   // By component and target state
	readErrors    *prometheus.CounterVec   // By component
	sliceDuration *prometheus.HistogramVec // By component
}

// newPumpMetrics creates and registers pump metrics with the provided registry.
func newPumpMetrics(registry *metric.MetricsRegistry, componentName string) (*pumpMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &pumpMetrics{
		component: componentName,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechcore",
			Subsystem: "pump",
			Name:      "transitions_total",
			Help:      "State transitions by target state",
		}, []string{"component", "state"}),

		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechcore",
			Subsystem: "pump",
			Name:      "read_errors_total",
			Help:      "Audio source read failures",
		}, []string{"component"}),

		sliceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "speechcore",
			Subsystem: "pump",
			Name:      "slice_duration_seconds",
			Help:      "Time spent in one read slice",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"component"}),
	}

	serviceName := "pump_" + componentName
	if err := registry.RegisterCounterVec(serviceName, "transitions_total", m.transitions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(serviceName, "read_errors_total", m.readErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(serviceName, "slice_duration_seconds", m.sliceDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *pumpMetrics) transition(s State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(m.component, s.String()).Inc()
}

func (m *pumpMetrics) readError() {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(m.component).Inc()
}

func (m *pumpMetrics) observeSlice(d time.Duration) {
	if m == nil {
		return
	}
	m.sliceDuration.WithLabelValues(m.component).Observe(d.Seconds())
}
