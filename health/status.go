package health

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/threadservice"
)

var (
	urlRegex         = regexp.MustCompile(`[a-z]+://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a part or of the whole runtime
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the counters a status was derived from
type Metrics struct {
	Uptime        time.Duration `json:"uptime,omitempty"`
	ErrorCount    int64         `json:"error_count"`
	TasksExecuted int64         `json:"tasks_executed,omitempty"`
	TasksPending  int           `json:"tasks_pending,omitempty"`
	LastActivity  time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// FromLaneStats reports a thread service lane. Failed tasks degrade it.
func FromLaneStats(name string, stats threadservice.LaneStats) Status {
	status := NewHealthy(name, fmt.Sprintf("%d pending", stats.Pending))
	if stats.Failed > 0 {
		status = NewDegraded(name, fmt.Sprintf("%d tasks failed to run", stats.Failed))
	}
	return status.WithMetrics(&Metrics{
		ErrorCount:    stats.Failed,
		TasksExecuted: stats.Executed,
		TasksPending:  stats.Pending,
	})
}

// FromCancellation reports how a session ended. End of stream and user
// cancellation are healthy; errors are unhealthy.
func FromCancellation(name string, info audio.ErrorInfo) Status {
	if info.Reason != audio.ReasonError {
		return NewHealthy(name, "ended: "+info.Reason.String())
	}
	message := info.Code.String()
	if detail := sanitizeErrorMessage(info.Detail); detail != "" {
		message += ": " + detail
	}
	return NewUnhealthy(name, message).WithMetrics(&Metrics{ErrorCount: 1, LastActivity: time.Now()})
}

// sanitizeErrorMessage replaces URLs, file paths, IP addresses, ports and
// credentials with placeholders.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
			break
		}
	}
	return sanitized
}
