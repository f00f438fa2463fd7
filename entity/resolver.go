package entity

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/registry"
)

// Defaults for NewResolver.
const (
	DefaultTimeout     = 2 * time.Second
	DefaultParallelism = 16
)

// Resolver resolves representations against a Lookup. It is stateless apart
// from its configuration and safe for concurrent use.
type Resolver struct {
	catalog     registry.Catalog
	lookup      Lookup
	timeout     time.Duration
	parallelism int
	logger      *slog.Logger
	metrics     *metric.Metrics
	service     string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each lookup. A lookup that exceeds it resolves NotFound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithParallelism caps the number of concurrent lookups per batch.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records resolution outcomes under service.
func WithMetrics(m *metric.Metrics, service string) Option {
	return func(r *Resolver) {
		r.metrics = m
		r.service = service
	}
}

// NewResolver creates a resolver for the types in catalog.
func NewResolver(catalog registry.Catalog, lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:     catalog,
		lookup:      lookup,
		timeout:     DefaultTimeout,
		parallelism: DefaultParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "entity-resolver")
	return r
}

// AcceptedKeys returns, per type, the key fields this resolver accepts.
func (r *Resolver) AcceptedKeys() map[string][]string {
	types := r.catalog.Types()
	keys := make(map[string][]string, len(types))
	for _, t := range types {
		keys[t.Name] = t.KeyFields
	}
	return keys
}

// Decode converts federation _Any values using the resolver's catalog.
func (r *Resolver) Decode(raw []any) []Representation {
	return DecodeRepresentations(r.catalog, raw)
}

// Resolve resolves a single entity.
func (r *Resolver) Resolve(ctx context.Context, typeName string, key Key) Resolved {
	return r.ResolveBatch(ctx, []Representation{{TypeName: typeName, Key: key}})[0]
}

// ResolveBatch resolves reps in parallel. The result has the same length as
// reps and out[i] corresponds to reps[i]. Every item is resolved against the
// registry snapshot taken when the call starts.
func (r *Resolver) ResolveBatch(ctx context.Context, reps []Representation) []Resolved {
	out := make([]Resolved, len(reps))
	snap := r.catalog.Snapshot()

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, rep := range reps {
		g.Go(func() error {
			out[i] = r.resolve(ctx, snap, rep)
			return nil
		})
	}
	_ = g.Wait()

	if r.metrics != nil {
		r.metrics.RecordBatch(r.service, len(reps))
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, reg *registry.Registry, rep Representation) (res Resolved) {
	res = Resolved{TypeName: rep.TypeName, Key: rep.Key}
	defer func() { r.observe(res) }()

	if rep.err != nil {
		res.Err = rep.err
		return res
	}

	t, err := reg.Describe(rep.TypeName)
	if err != nil {
		res.Err = err
		return res
	}

	key, err := NormalizeKey(t, rep.Key)
	if err != nil {
		res.Err = err
		return res
	}
	res.Key = key

	start := time.Now()
	rec, found, err := r.lookupBounded(ctx, t.Name, key)
	if r.metrics != nil {
		r.metrics.RecordLookup(r.service, t.Name, time.Since(start))
	}
	switch {
	case err != nil:
		res.Err = err
	case !found:
		res.Err = errors.ErrNotFound
	default:
		res.Record = project(t, key, rec)
	}
	return res
}

type lookupResult struct {
	rec   Record
	found bool
	err   error
}

// lookupBounded runs the lookup under the per-item timeout. A lookup that
// ignores its context is abandoned when the deadline passes.
func (r *Resolver) lookupBounded(ctx context.Context, typeName string, key Key) (Record, bool, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		rec, found, err := r.lookup.LookupByKey(lctx, typeName, key)
		done <- lookupResult{rec: rec, found: found, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if stderrors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, false, errors.ErrLookupTimeout
			}
			return nil, false, errors.Wrap(res.err, "Resolver", "LookupByKey", "lookup "+typeName)
		}
		return res.rec, res.found, nil
	case <-lctx.Done():
		if ctx.Err() != nil {
			return nil, false, errors.Wrap(ctx.Err(), "Resolver", "LookupByKey", "lookup "+typeName)
		}
		return nil, false, errors.ErrLookupTimeout
	}
}

// project keeps the owned fields of rec and sets the key fields to the
// requested values.
func project(t registry.EntityType, key Key, rec Record) Record {
	out := make(Record, len(t.Fields))
	for _, f := range t.Fields {
		if f.Ownership != registry.Local {
			continue
		}
		if v, ok := rec[f.Name]; ok {
			out[f.Name] = v
		}
	}
	for name, v := range key {
		out[name] = v
	}
	return out
}

func (r *Resolver) observe(res Resolved) {
	reason := errors.Reason(res.Err)
	if r.metrics != nil {
		r.metrics.RecordEntity(r.service, res.TypeName, reason)
	}
	if res.Err == nil {
		return
	}

	attrs := []any{"type", res.TypeName, "key", FormatKey(res.Key), "reason", reason}
	switch reason {
	case "timeout", "lookup_error":
		r.logger.Warn("entity resolved as not found", append(attrs, "error", res.Err)...)
	default:
		r.logger.Debug("entity resolved as not found", append(attrs, "error", res.Err)...)
	}
}
