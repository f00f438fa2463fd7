// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry, always-on statistics and optional Prometheus metrics.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/c360/fedgraph/errors"
)

// Cache is a bounded LRU cache. Entries older than the TTL are treated as
// absent and dropped on access; a zero TTL keeps entries until evicted.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	stats   *Statistics
	metrics *cacheMetrics
	now     func() time.Time
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero means no expiry
}

// New creates a cache holding at most maxSize entries.
func New[V any](maxSize int, opts ...Option) (*Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "max size must be positive")
	}
	o := applyOptions(opts...)
	if o.ttl < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "ttl cannot be negative")
	}

	c := &Cache[V]{
		maxSize: maxSize,
		ttl:     o.ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		now:     time.Now,
	}
	if o.registrar != nil && o.name != "" {
		m, err := newCacheMetrics(o.registrar, o.name)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
		c.metrics = m
	}
	return c, nil
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if ok {
		e := el.Value.(*entry[V])
		if e.expiresAt.IsZero() || c.now().Before(e.expiresAt) {
			c.order.MoveToFront(el)
			c.stats.Hit()
			c.metrics.recordHit()
			return e.value, true
		}
		c.remove(el)
		c.stats.Expiration()
	}
	c.stats.Miss()
	c.metrics.recordMiss()
	return zero, false
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full. It reports whether a new entry was created.
func (c *Cache[V]) Set(key string, value V) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "cache", "Set", "key cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return false, nil
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	if len(c.items) > c.maxSize {
		c.remove(c.order.Back())
		c.stats.Eviction()
		c.metrics.recordEviction()
	}
	c.stats.UpdateSize(len(c.items))
	c.metrics.setSize(len(c.items))
	return true, nil
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(el)
	c.stats.UpdateSize(len(c.items))
	c.metrics.setSize(len(c.items))
	return true
}

// Len returns the number of entries, expired ones included until they are
// next accessed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the cache statistics.
func (c *Cache[V]) Stats() *Statistics {
	return c.stats
}

// remove must be called with mu held.
func (c *Cache[V]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[V])
	delete(c.items, e.key)
}
