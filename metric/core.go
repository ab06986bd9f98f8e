package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the dispatch-level metrics shared by every component
type Metrics struct {
	RequestsReceived   *prometheus.CounterVec
	DecodeFailures     *prometheus.CounterVec
	RepliesPublished   *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	InFlight           *prometheus.GaugeVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the dispatch metrics. They are not registered; see
// NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gytheio",
				Subsystem: "dispatch",
				Name:      "requests_received_total",
				Help:      "Requests accepted by a component",
			},
			[]string{"component", "kind"},
		),

		DecodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gytheio",
				Subsystem: "dispatch",
				Name:      "decode_failures_total",
				Help:      "Inbound messages dropped because they could not be decoded",
			},
			[]string{"component"},
		),

		RepliesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gytheio",
				Subsystem: "dispatch",
				Name:      "replies_published_total",
				Help:      "Replies published by status",
			},
			[]string{"component", "status"},
		),

		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gytheio",
				Subsystem: "dispatch",
				Name:      "publish_failures_total",
				Help:      "Replies that could not be handed to the transport",
			},
			[]string{"component"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gytheio",
				Subsystem: "dispatch",
				Name:      "processing_duration_seconds",
				Help:      "Worker execution time per request",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"component", "outcome"},
		),

		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gytheio",
				Subsystem: "dispatch",
				Name:      "in_flight",
				Help:      "Requests currently executing (0 or 1 per component)",
			},
			[]string{"component"},
		),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gytheio",
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection state (1=connected, 0=disconnected)",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gytheio",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "NATS reconnections",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsReceived,
		m.DecodeFailures,
		m.RepliesPublished,
		m.PublishFailures,
		m.ProcessingDuration,
		m.InFlight,
		m.NATSConnected,
		m.NATSReconnects,
	}
}
