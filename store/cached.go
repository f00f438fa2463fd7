package store

import (
	"context"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/pkg/cache"
	"github.com/c360/fedgraph/registry"
)

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cached serves found records from an LRU cache in front of a remote
// store. Misses and errors are not cached.
type Cached struct {
	catalog registry.Catalog
	backing entity.Lookup
	records *cache.Cache[entity.Record]
}

// NewCached wraps backing with records.
func NewCached(catalog registry.Catalog, backing entity.Lookup, records *cache.Cache[entity.Record]) *Cached {
	return &Cached{catalog: catalog, backing: backing, records: records}
}

// LookupByKey implements entity.Lookup.
func (c *Cached) LookupByKey(ctx context.Context, typeName string, key entity.Key) (entity.Record, bool, error) {
	canonical, err := canonicalKey(c.catalog, typeName, key)
	if err != nil {
		return nil, false, err
	}
	cacheKey := BucketKey(typeName, canonical)
	if rec, ok := c.records.Get(cacheKey); ok {
		return rec.Clone(), true, nil
	}

	rec, ok, err := c.backing.LookupByKey(ctx, typeName, key)
	if err != nil || !ok {
		return rec, ok, err
	}
	if _, err := c.records.Set(cacheKey, rec.Clone()); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Put writes through to the backing store and drops the cached record.
func (c *Cached) Put(ctx context.Context, typeName string, rec entity.Record) error {
	w, ok := c.backing.(Writer)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Cached", "Put", "backing store is read-only")
	}
	if err := w.Put(ctx, typeName, rec); err != nil {
		return err
	}
	if canonical, err := canonicalOf(c.catalog, typeName, rec); err == nil {
		c.records.Delete(BucketKey(typeName, canonical))
	}
	return nil
}

// Ping checks the backing store when it supports it.
func (c *Cached) Ping(ctx context.Context) error {
	if p, ok := c.backing.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Stats returns the cache statistics.
func (c *Cached) Stats() *cache.Statistics {
	return c.records.Stats()
}
