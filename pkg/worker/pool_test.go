package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fedgraph/metric"
)

type testWork struct {
	id   int
	fail bool
}

func noop(context.Context, testWork) error { return nil }

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(5, 100, noop)
	assert.Equal(t, 5, pool.Stats().Workers)
	assert.Equal(t, 100, pool.Stats().QueueSize)

	pool = NewPool(0, 0, noop)
	assert.Equal(t, 10, pool.Stats().Workers)
	assert.Equal(t, 1000, pool.Stats().QueueSize)
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[testWork](5, 100, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(3, 10, func(_ context.Context, _ testWork) error {
		processed.Add(1)
		return nil
	})

	assert.Equal(t, ErrPoolNotStarted, pool.Submit(testWork{id: 1}))

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.Equal(t, ErrPoolAlreadyStarted, pool.Start(ctx))

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(5), processed.Load(), "Stop drains queued work")

	assert.Equal(t, ErrPoolStopped, pool.Submit(testWork{id: 6}))
	assert.NoError(t, pool.Stop(time.Second), "second Stop is a no-op")
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// One item occupies the worker, one fills the queue.
	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{id: 2}))

	assert.Equal(t, ErrQueueFull, pool.Submit(testWork{id: 3}))
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.SubmitWait(ctx, testWork{id: 4}), context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitWaitSucceedsWhenSpaceFrees(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{id: 2}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, pool.SubmitWait(ctx, testWork{id: 3}))
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(3), pool.Stats().Processed)
}

func TestPool_StopReleasesSubmitWait(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(testWork{id: 2}))

	blocked := make(chan error, 1)
	go func() { blocked <- pool.SubmitWait(context.Background(), testWork{id: 3}) }()
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, ErrPoolStopped, <-blocked)
	assert.Equal(t, int64(2), pool.Stats().Processed)
}

func TestPool_ProcessingErrors(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.fail {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(testWork{id: i, fail: i%2 == 0}))
	}
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(6), stats.Submitted)
	assert.Equal(t, int64(6), stats.Processed)
	assert.Equal(t, int64(3), stats.Failed)
}

func TestPool_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	pool := NewPool(1, 10, func(ctx context.Context, _ testWork) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started

	cancel()
	assert.NoError(t, pool.Stop(time.Second))
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)

	assert.Equal(t, ErrStopTimeout, pool.Stop(10*time.Millisecond))
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(2, 10, noop, WithMetrics[testWork](registry, "test_pool"))
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, 4.0, testutil.ToFloat64(pool.metrics.submitted))
	assert.Contains(t, registry.Registered(), "test_pool.depth")

	// A second pool with the same prefix cannot register.
	other := NewPool(1, 1, noop, WithMetrics[testWork](registry, "test_pool"))
	assert.Error(t, other.Start(context.Background()))
}
