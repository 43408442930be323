package component

import (
	"log/slog"

	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/site"
)

// Dependencies provides the external dependencies factories hand to the
// components they create.
type Dependencies struct {
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Services        site.ServiceProvider    // Root services (can be nil)
	Factory         ObjectFactory           // Factory for creating sub-components (set by the registry)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
