package store

import (
	"context"

	"github.com/c360/fedgraph/entity"
)

// Router dispatches lookups by type name. Types without a route go to the
// fallback; with no fallback they are not found.
type Router struct {
	routes   map[string]entity.Lookup
	fallback entity.Lookup
}

// NewRouter returns a router with the given fallback, which may be nil.
func NewRouter(fallback entity.Lookup) *Router {
	return &Router{routes: make(map[string]entity.Lookup), fallback: fallback}
}

// Route sends lookups for typeName to l.
func (r *Router) Route(typeName string, l entity.Lookup) *Router {
	r.routes[typeName] = l
	return r
}

// LookupByKey implements entity.Lookup.
func (r *Router) LookupByKey(ctx context.Context, typeName string, key entity.Key) (entity.Record, bool, error) {
	if l, ok := r.routes[typeName]; ok {
		return l.LookupByKey(ctx, typeName, key)
	}
	if r.fallback != nil {
		return r.fallback.LookupByKey(ctx, typeName, key)
	}
	return nil, false, nil
}
