package cache

import (
	"sync/atomic"
)

// Statistics tracks cache activity. It is safe for concurrent use.
type Statistics struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	size        atomic.Int64
}

// NewStatistics creates an empty statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Eviction records an entry dropped to respect the size bound.
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// Expiration records an entry dropped because its TTL passed.
func (s *Statistics) Expiration() { s.expirations.Add(1) }

// UpdateSize records the current number of entries.
func (s *Statistics) UpdateSize(size int) { s.size.Store(int64(size)) }

// Hits returns the number of hits.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of misses.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Evictions returns the number of evictions.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// Expirations returns the number of expirations.
func (s *Statistics) Expirations() int64 { return s.expirations.Load() }

// Size returns the last recorded number of entries.
func (s *Statistics) Size() int64 { return s.size.Load() }

// HitRatio returns hits over lookups, or 0 before the first lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
