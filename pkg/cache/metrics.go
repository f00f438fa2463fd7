package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fedgraph/metric"
)

// cacheMetrics mirrors Statistics as Prometheus collectors, labelled with
// the cache name. A nil *cacheMetrics records nothing.
type cacheMetrics struct {
	hits, misses, evictions prometheus.Counter
	size                    prometheus.Gauge
}

func newCacheMetrics(registrar metric.MetricsRegistrar, name string) (*cacheMetrics, error) {
	opts := func(metricName, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   "fedgraph",
			Subsystem:   "cache",
			Name:        metricName,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": name},
		}
	}

	m := &cacheMetrics{
		hits:      prometheus.NewCounter(prometheus.CounterOpts(opts("hits_total", "Lookups answered from the cache."))),
		misses:    prometheus.NewCounter(prometheus.CounterOpts(opts("misses_total", "Lookups passed to the backing store, expired entries included."))),
		evictions: prometheus.NewCounter(prometheus.CounterOpts(opts("evictions_total", "Entries dropped to stay within capacity."))),
		size:      prometheus.NewGauge(prometheus.GaugeOpts(opts("size", "Entries currently held."))),
	}

	for _, c := range []struct {
		key string
		c   prometheus.Collector
	}{{"hits", m.hits}, {"misses", m.misses}, {"evictions", m.evictions}, {"size", m.size}} {
		if err := registrar.Register("cache_"+name, c.key, c.c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) setSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
