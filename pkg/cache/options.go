package cache

import (
	"time"

	"github.com/c360/fedgraph/metric"
)

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	ttl       time.Duration
	registrar metric.MetricsRegistrar
	name      string
}

// WithTTL expires entries ttl after they were last set.
func WithTTL(ttl time.Duration) Option {
	return func(o *cacheOptions) {
		o.ttl = ttl
	}
}

// WithMetrics exports the cache counters to registrar, labelled with name.
func WithMetrics(registrar metric.MetricsRegistrar, name string) Option {
	return func(o *cacheOptions) {
		o.registrar = registrar
		o.name = name
	}
}

func applyOptions(opts ...Option) *cacheOptions {
	o := &cacheOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
