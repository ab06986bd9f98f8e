package objectstore

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/metric"
)

// handlerMetrics holds Prometheus metrics for bucket operations.
type handlerMetrics struct {
	ops     *prometheus.CounterVec   // By operation
	latency *prometheus.HistogramVec // By operation
	errors  *prometheus.CounterVec   // By operation
	bytes   *prometheus.CounterVec   // By direction: read, write
}

// newHandlerMetrics creates and registers the metrics of one bucket.
// Handlers over the same bucket share them.
func newHandlerMetrics(registry *metric.MetricsRegistry, bucket string) (*handlerMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &handlerMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "gytheio",
			Subsystem:   "objectstore",
			Name:        "operations_total",
			Help:        "Total number of content operations",
			ConstLabels: prometheus.Labels{"bucket": bucket},
		}, []string{"operation"}), // operation: create, get_file, get_stream, put, delete

		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "gytheio",
			Subsystem:   "objectstore",
			Name:        "operation_duration_seconds",
			Help:        "Content operation duration in seconds",
			ConstLabels: prometheus.Labels{"bucket": bucket},
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 10.0},
		}, []string{"operation"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "gytheio",
			Subsystem:   "objectstore",
			Name:        "operation_errors_total",
			Help:        "Total number of failed content operations",
			ConstLabels: prometheus.Labels{"bucket": bucket},
		}, []string{"operation"}),

		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "gytheio",
			Subsystem:   "objectstore",
			Name:        "bytes_total",
			Help:        "Content bytes transferred",
			ConstLabels: prometheus.Labels{"bucket": bucket},
		}, []string{"direction"}),
	}

	owner := "objectstore." + bucket
	var err error
	if m.ops, err = shared(registry, owner, "ops", m.ops); err != nil {
		return nil, err
	}
	if m.latency, err = shared(registry, owner, "latency", m.latency); err != nil {
		return nil, err
	}
	if m.errors, err = shared(registry, owner, "errors", m.errors); err != nil {
		return nil, err
	}
	if m.bytes, err = shared(registry, owner, "bytes", m.bytes); err != nil {
		return nil, err
	}
	return m, nil
}

// shared registers c, or returns the collector of the same name another
// handler over the bucket registered first.
func shared[C prometheus.Collector](registry *metric.MetricsRegistry, owner, name string, c C) (C, error) {
	got, err := registry.RegisterOrGet(owner, name, c)
	if err != nil {
		var zero C
		return zero, err
	}
	existing, ok := got.(C)
	if !ok {
		var zero C
		return zero, errors.WrapInvalid(fmt.Errorf("metric %s of %s has type %T", name, owner, got),
			"ObjectStoreHandler", "newHandlerMetrics", "reuse bucket metrics")
	}
	return existing, nil
}

// observe records one operation. Safe on a nil receiver.
func (m *handlerMetrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(operation).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *handlerMetrics) transferred(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
