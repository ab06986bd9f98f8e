// Package metric provides the Prometheus registry shared by workers,
// handlers and transports.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Alfresco/gytheio-sub001/errors"
)

// MetricsRegistry owns the process Prometheus registry. Collectors added
// through Register are keyed by owner and name so that one owner cannot
// register the same metric twice.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	owned              map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry with the core dispatch
// metrics and Go runtime collectors registered.
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		owned:              make(map[string]prometheus.Collector),
	}

	registry.Metrics = NewMetrics()
	registry.prometheusRegistry.MustRegister(registry.Metrics.collectors()...)
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core dispatch metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Register adds collector under owner and name.
func (r *MetricsRegistry) Register(owner, name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := owner + "." + name
	if _, exists := r.owned[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered by %s", name, owner),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var conflict prometheus.AlreadyRegisteredError
		if stderrors.As(err, &conflict) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "prometheus conflict for "+key)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register with prometheus")
	}

	r.owned[key] = collector
	return nil
}

// RegisterOrGet adds collector under owner and name, or returns the
// collector already registered there. Owners that may be constructed more
// than once, such as two handlers over one bucket, share their collectors
// this way.
func (r *MetricsRegistry) RegisterOrGet(owner, name string, collector prometheus.Collector) (prometheus.Collector, error) {
	r.mu.Lock()
	existing, ok := r.owned[owner+"."+name]
	r.mu.Unlock()
	if ok {
		return existing, nil
	}

	err := r.Register(owner, name, collector)
	if err == nil {
		return collector, nil
	}
	// Lost a race with another constructor of the same owner.
	r.mu.Lock()
	existing, ok = r.owned[owner+"."+name]
	r.mu.Unlock()
	if ok {
		return existing, nil
	}
	return nil, err
}

// Unregister removes the collector registered under owner and name.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := owner + "." + name
	collector, exists := r.owned[key]
	if !exists {
		return false
	}
	delete(r.owned, key)
	return r.prometheusRegistry.Unregister(collector)
}
