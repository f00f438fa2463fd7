package metric

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/fedgraph/errors"
)

// MetricsRegistrar is implemented by anything components can hand their
// collectors to. Register fails on a second collector for the same owner
// and name.
type MetricsRegistrar interface {
	Register(owner, name string, collector prometheus.Collector) error
	Unregister(owner, name string) bool
}

type collectorKey struct {
	owner string
	name  string
}

func (k collectorKey) String() string { return k.owner + "." + k.name }

// MetricsRegistry owns the Prometheus registry of one subgraph process: the
// fedgraph core metrics, Go runtime and process collectors, and whatever
// components register later.
type MetricsRegistry struct {
	prom *prometheus.Registry
	core *Metrics

	mu    sync.RWMutex
	owned map[collectorKey]prometheus.Collector
}

// NewMetricsRegistry returns a registry with the core metrics registered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:  prometheus.NewRegistry(),
		core:  NewMetrics(),
		owned: make(map[collectorKey]prometheus.Collector),
	}
	r.prom.MustRegister(r.core.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry exposes the registry for gathering.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry { return r.prom }

// CoreMetrics returns the entity, query and NATS metrics shared by every
// component.
func (r *MetricsRegistry) CoreMetrics() *Metrics { return r.core }

// Register adds collector under owner.name. A name clash inside Prometheus
// is reported as invalid input, like a duplicate key.
func (r *MetricsRegistry) Register(owner, name string, collector prometheus.Collector) error {
	if owner == "" || name == "" {
		return errors.WrapInvalid(fmt.Errorf("owner and name are required"),
			"MetricsRegistry", "Register", "collector key")
	}
	key := collectorKey{owner: owner, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.owned[key]; dup {
		return errors.WrapInvalid(fmt.Errorf("collector %s already registered", key),
			"MetricsRegistry", "Register", "duplicate collector")
	}

	err := r.prom.Register(collector)
	var clash prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
	case stderrors.As(err, &clash):
		return errors.WrapInvalid(err, "MetricsRegistry", "Register",
			fmt.Sprintf("%s clashes with an existing collector", key))
	default:
		return errors.WrapFatal(err, "MetricsRegistry", "Register",
			fmt.Sprintf("prometheus rejected %s", key))
	}

	r.owned[key] = collector
	return nil
}

// Unregister removes the collector stored under owner.name and reports
// whether one was removed.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	key := collectorKey{owner: owner, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.owned[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}

// Registered lists the owner.name keys of component collectors, sorted.
func (r *MetricsRegistry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.owned))
	for k := range r.owned {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}
