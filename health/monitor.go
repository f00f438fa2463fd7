package health

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Probe reports the current health of one part
type Probe func(ctx context.Context) Status

// ErrorProbe adapts a check returning an error. A failing critical check
// is unhealthy; any other failing check is degraded.
func ErrorProbe(critical bool, check func(ctx context.Context) error) Probe {
	return func(ctx context.Context) Status {
		if err := check(ctx); err != nil {
			msg := sanitizeErrorMessage(err.Error())
			if critical {
				return NewUnhealthy("", msg)
			}
			return NewDegraded("", msg)
		}
		return NewHealthy("", "")
	}
}

// Monitor runs named probes. It is safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

// NewMonitor creates a monitor whose probes each get at most timeout
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{probes: make(map[string]Probe), timeout: timeout}
}

// Register adds or replaces the probe for name
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Names returns the registered probe names, sorted
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Check runs every probe concurrently and aggregates the results under
// system. Sub-statuses are ordered by probe name.
func (m *Monitor) Check(ctx context.Context, system string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	probes := make([]Probe, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		probes = append(probes, m.probes[name])
	}
	m.mu.RUnlock()

	subs := make([]Status, len(probes))
	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			s := probe(pctx)
			s.Component = names[i]
			if s.Timestamp.IsZero() {
				s.Timestamp = time.Now()
			}
			subs[i] = s
		}()
	}
	wg.Wait()

	return Aggregate(system, subs)
}
