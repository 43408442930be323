package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/threadservice"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"unix file path", "failed to open /home/user/speech.wav", "failed to open [PATH]"},
		{"windows file path", "cannot read C:\\Audio\\speech.wav", "cannot read [PATH]"},
		{"url", "fetch failed for https://example.com/a.mp3", "fetch failed for [URL]"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :9090", "failed to bind to [PORT]"},
		{"credential", "auth failed with token=abc123", "auth failed with [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"degraded wins over healthy", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Aggregate("system", tt.subs)
			assert.Equal(t, tt.expected, status.Status)
			assert.Equal(t, tt.expected == StatusHealthy, status.Healthy)
			assert.Len(t, status.SubStatuses, len(tt.subs))
		})
	}

	status := Aggregate("system", []Status{NewHealthy("z", ""), NewHealthy("a", "")})
	assert.Equal(t, "a", status.SubStatuses[0].Component)
}

func TestWithSubStatus_DoesNotShare(t *testing.T) {
	base := NewHealthy("root", "").WithSubStatus(NewHealthy("a", ""))
	one := base.WithSubStatus(NewHealthy("b", ""))
	two := base.WithSubStatus(NewHealthy("c", ""))

	assert.Len(t, base.SubStatuses, 1)
	assert.Equal(t, "b", one.SubStatuses[1].Component)
	assert.Equal(t, "c", two.SubStatuses[1].Component)
}

func TestFromLaneStats(t *testing.T) {
	status := FromLaneStats("user-lane", threadservice.LaneStats{Executed: 10, Pending: 2})
	assert.True(t, status.IsHealthy())
	assert.Equal(t, int64(10), status.Metrics.TasksExecuted)

	status = FromLaneStats("user-lane", threadservice.LaneStats{Failed: 1})
	assert.True(t, status.IsDegraded())
	assert.Equal(t, int64(1), status.Metrics.ErrorCount)
}

func TestFromCancellation(t *testing.T) {
	status := FromCancellation("session", audio.ErrorInfo{Reason: audio.ReasonEndOfStream})
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "ended: end_of_stream", status.Message)

	status = FromCancellation("session", audio.ErrorInfo{
		Reason: audio.ReasonError,
		Code:   audio.CodeRuntimeError,
		Detail: "read /data/speech.wav: input/output error",
	})
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, "runtime_error: read [PATH]: input[PATH] error", status.Message)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("session", "streaming")

	got, ok := m.Get("session")
	require.True(t, ok)
	assert.Equal(t, "session", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	failed := int64(0)
	m.Probe("lane", func() Status {
		return FromLaneStats("ignored", threadservice.LaneStats{Failed: failed})
	})
	assert.True(t, m.AggregateHealth("speechcore").IsHealthy())

	failed = 2
	agg := m.AggregateHealth("speechcore")
	assert.True(t, agg.IsDegraded())
	assert.Equal(t, "lane", agg.SubStatuses[0].Component)

	m.UpdateUnhealthy("session", "runtime_error")
	assert.True(t, m.AggregateHealth("speechcore").IsUnhealthy())

	m.Remove("session")
	m.Remove("lane")
	_, ok = m.Get("session")
	assert.False(t, ok)
	assert.True(t, m.AggregateHealth("speechcore").IsHealthy())
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("session", "streaming")

	rec := httptest.NewRecorder()
	m.Handler("speechcore").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "speechcore", status.Component)
	assert.Len(t, status.SubStatuses, 1)

	m.UpdateUnhealthy("session", "runtime_error")
	rec = httptest.NewRecorder()
	m.Handler("speechcore").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
