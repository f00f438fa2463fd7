// Package metric provides the Prometheus metrics of a fedgraph subgraph and
// the registry that owns them.
//
// NewMetricsRegistry registers the core federation metrics (entity
// resolution outcomes, batch sizes, query durations and errors, NATS health)
// together with the Go runtime collectors. Components that need their own
// collectors, such as the worker pool, register them through the
// MetricsRegistrar interface. Handler exposes everything in the Prometheus
// text format.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the metrics shared by all fedgraph components.
type Metrics struct {
	// Entity resolution
	EntitiesResolved *prometheus.CounterVec
	BatchSize        *prometheus.HistogramVec
	LookupDuration   *prometheus.HistogramVec

	// Query execution
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// NATS
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the core metrics. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		EntitiesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fedgraph",
				Subsystem: "entities",
				Name:      "resolved_total",
				Help:      "Entity representations processed, by type and outcome",
			},
			[]string{"service", "type", "outcome"},
		),

		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fedgraph",
				Subsystem: "entities",
				Name:      "batch_size",
				Help:      "Representations per _entities batch",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"service"},
		),

		LookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fedgraph",
				Subsystem: "entities",
				Name:      "lookup_duration_seconds",
				Help:      "Backing lookup duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"service", "type"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fedgraph",
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "GraphQL operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		QueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fedgraph",
				Subsystem: "query",
				Name:      "errors_total",
				Help:      "GraphQL errors returned, by extension code",
			},
			[]string{"service", "code"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fedgraph",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fedgraph",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fedgraph",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EntitiesResolved,
		m.BatchSize,
		m.LookupDuration,
		m.QueryDuration,
		m.QueryErrors,
		m.NATSConnected,
		m.NATSRTT,
		m.NATSReconnects,
	}
}

// RecordEntity counts one processed representation.
func (m *Metrics) RecordEntity(service, typeName, outcome string) {
	m.EntitiesResolved.WithLabelValues(service, typeName, outcome).Inc()
}

// RecordBatch records the size of one _entities batch.
func (m *Metrics) RecordBatch(service string, size int) {
	m.BatchSize.WithLabelValues(service).Observe(float64(size))
}

// RecordLookup records the duration of one backing lookup.
func (m *Metrics) RecordLookup(service, typeName string, d time.Duration) {
	m.LookupDuration.WithLabelValues(service, typeName).Observe(d.Seconds())
}

// RecordQuery records the duration of one GraphQL operation.
func (m *Metrics) RecordQuery(service, operation string, d time.Duration) {
	m.QueryDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}

// RecordQueryError counts one GraphQL error by extension code.
func (m *Metrics) RecordQueryError(service, code string) {
	m.QueryErrors.WithLabelValues(service, code).Inc()
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (m *Metrics) RecordNATSRTT(rtt time.Duration) {
	m.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}
