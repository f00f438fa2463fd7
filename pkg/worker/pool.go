// Package worker provides a generic bounded worker pool. The NATS entity
// endpoint uses it to cap the number of _entities batches resolved at once.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fedgraph/metric"
)

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateStopped
)

// Pool processes work items of type T on a fixed number of goroutines fed
// from a bounded queue.
type Pool[T any] struct {
	size    int
	process func(context.Context, T) error
	queue   chan T

	// quit is closed when Stop begins and releases blocked SubmitWait
	// callers. drain is closed once no further sends can happen.
	quit  chan struct{}
	drain chan struct{}

	stopMu  sync.Mutex
	mu      sync.RWMutex // guards state; held for reading across sends
	state   poolState
	running sync.WaitGroup

	submitted, processed, failed, dropped atomic.Int64

	registrar metric.MetricsRegistrar
	prefix    string
	metrics   *poolMetrics
}

type poolMetrics struct {
	submitted prometheus.Counter
	dropped   prometheus.Counter
	duration  *prometheus.HistogramVec
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetrics registers the pool's collectors, named prefix_*, when the
// pool starts.
func WithMetrics[T any](registrar metric.MetricsRegistrar, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.registrar = registrar
		p.prefix = prefix
	}
}

// NewPool creates a pool of workers goroutines behind a queue of queueSize.
// Non-positive sizes fall back to 10 workers and a queue of 1000. It panics
// with ErrNilProcessor if process is nil.
func NewPool[T any](workers, queueSize int, process func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if process == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool[T]{
		size:    workers,
		process: process,
		queue:   make(chan T, queueSize),
		quit:    make(chan struct{}),
		drain:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. They exit when ctx is cancelled or after Stop
// has drained the queue. A pool starts once.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateIdle {
		return ErrPoolAlreadyStarted
	}
	if p.registrar != nil && p.prefix != "" {
		if err := p.register(); err != nil {
			return err
		}
	}

	p.running.Add(p.size)
	for range p.size {
		go p.work(ctx)
	}
	p.state = stateRunning
	return nil
}

// Submit queues work without blocking. It returns ErrQueueFull if the queue
// is at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.accepting(); err != nil {
		return err
	}
	select {
	case p.queue <- work:
		p.enqueued()
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// SubmitWait queues work, blocking until there is room, ctx is done or the
// pool stops.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.accepting(); err != nil {
		return err
	}
	select {
	case p.queue <- work:
		p.enqueued()
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work and waits up to timeout for the workers to finish
// what is queued. Stopping a pool that is not running is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()
	if st != stateRunning {
		return nil
	}

	close(p.quit)
	p.mu.Lock()
	p.state = stateStopped
	p.mu.Unlock()
	close(p.drain)

	finished := make(chan struct{})
	go func() {
		p.running.Wait()
		close(finished)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-finished:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.size,
		QueueSize:  cap(p.queue),
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) accepting() error {
	switch p.state {
	case stateIdle:
		return ErrPoolNotStarted
	case stateStopped:
		return ErrPoolStopped
	}
	return nil
}

func (p *Pool[T]) enqueued() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
	}
}

func (p *Pool[T]) work(ctx context.Context) {
	defer p.running.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			p.run(ctx, item)
		case <-p.drain:
			for ctx.Err() == nil {
				select {
				case item := <-p.queue:
					p.run(ctx, item)
				default:
					return
				}
			}
			return
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, item T) {
	start := time.Now()
	err := p.process(ctx, item)

	p.processed.Add(1)
	outcome := "success"
	if err != nil {
		p.failed.Add(1)
		outcome = "error"
	}
	if p.metrics != nil {
		p.metrics.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

func (p *Pool[T]) register() error {
	m := &poolMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.prefix + "_submitted_total",
			Help: "Work items accepted into the queue.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.prefix + "_dropped_total",
			Help: "Work items rejected because the queue was full.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    p.prefix + "_processing_duration_seconds",
			Help:    "Time spent processing one work item, by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 9),
		}, []string{"outcome"}),
	}
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: p.prefix + "_queue_depth",
		Help: "Work items waiting in the queue.",
	}, func() float64 { return float64(len(p.queue)) })

	for name, c := range map[string]prometheus.Collector{
		"submitted": m.submitted,
		"dropped":   m.dropped,
		"duration":  m.duration,
		"depth":     depth,
	} {
		if err := p.registrar.Register(p.prefix, name, c); err != nil {
			return err
		}
	}
	p.metrics = m
	return nil
}
