package component

import (
	"log/slog"

	"github.com/Alfresco/gytheio-sub001/metric"
	"github.com/Alfresco/gytheio-sub001/transport"
)

// Dependencies provides all external dependencies needed by components.
type Dependencies struct {
	Transport       transport.Transport     // Request and reply transport
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
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

// GetMetrics returns the core dispatch metrics, or nil without a registry
func (d *Dependencies) GetMetrics() *metric.Metrics {
	if d.MetricsRegistry == nil {
		return nil
	}
	return d.MetricsRegistry.CoreMetrics()
}
