package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Monitor tracks the latest status of named parts
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]func() Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]func() Status),
	}
}

// Update records status under name, replacing the previous one
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a part as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to update a part as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// Probe registers fn to be polled for name's status on every read.
// A probe takes precedence over a status recorded with Update.
func (m *Monitor) Probe(name string, fn func() Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = fn
}

// Get retrieves the status for name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	probe, probed := m.probes[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if probed {
		status = probe()
		status.Component = name
		return status, true
	}
	return status, exists
}

// Remove stops tracking name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// AggregateHealth returns the aggregated status of every tracked part
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses)+len(m.probes))
	for name, status := range m.statuses {
		if _, probed := m.probes[name]; !probed {
			subStatuses = append(subStatuses, status)
		}
	}
	probes := make(map[string]func() Status, len(m.probes))
	for name, fn := range m.probes {
		probes[name] = fn
	}
	m.mu.RUnlock()

	for name, fn := range probes {
		status := fn()
		status.Component = name
		subStatuses = append(subStatuses, status)
	}
	return Aggregate(systemName, subStatuses)
}

// Handler serves the aggregate as JSON. Unhealthy answers 503.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.AggregateHealth(systemName)
		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
