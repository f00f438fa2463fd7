// Package graphql serves a subgraph: the GraphQL endpoint over HTTP with the
// federation fields _service and _entities, and the entity resolution
// endpoint over NATS.
package graphql

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/health"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/natsclient"
	"github.com/c360/fedgraph/schema"
)

// Dependencies are the optional collaborators of a Gateway.
type Dependencies struct {
	// NATSClient enables the NATS entities endpoint when set.
	NATSClient *natsclient.Client
	// Metrics enables /metrics and federation metrics when set.
	Metrics *metric.MetricsRegistry
	Logger  *slog.Logger
	// Probes are added to /health, keyed by part name.
	Probes map[string]health.Probe
}

// HealthStatus reports the state of a Gateway.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	LastCheck time.Time     `json:"last_check"`
	Uptime    time.Duration `json:"uptime"`
	Service   string        `json:"service"`
}

// Gateway runs one subgraph.
type Gateway struct {
	config   Config
	service  string
	doc      *schema.Document
	executor *Executor
	server   *Server
	entities *EntityHandler
	logger   *slog.Logger

	startTimeout time.Duration

	running   atomic.Bool
	mu        sync.RWMutex
	startTime time.Time
	schemaAt  string
}

// NewGateway composes the subgraph schema and wires the executor, the HTTP
// server and, with a NATS client, the entities endpoint. Composition and
// key verification failures are fatal.
func NewGateway(config Config, svc *facade.Service, deps Dependencies) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}
	if svc == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway", "service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := schema.Compose(svc.Name, svc.Registry)
	if err != nil {
		return nil, err
	}

	var m *metric.Metrics
	if deps.Metrics != nil {
		m = deps.Metrics.CoreMetrics()
	}
	resolver := entity.NewResolver(svc.Registry, svc.Lookup,
		entity.WithTimeout(config.LookupTimeout()),
		entity.WithParallelism(config.BatchParallelism),
		entity.WithLogger(logger),
		entity.WithMetrics(m, svc.Name),
	)

	executor, err := NewExecutor(svc, doc, resolver,
		WithExecutorLogger(logger),
		WithExecutorMetrics(m),
		WithMaxDepth(config.MaxQueryDepth),
		WithRequestTimeout(config.Timeout()),
	)
	if err != nil {
		return nil, err
	}

	server, err := NewServer(config, executor, deps.Metrics, logger)
	if err != nil {
		return nil, errors.WrapFatal(err, "Gateway", "NewGateway", "create server")
	}

	g := &Gateway{
		config:   config,
		service:  svc.Name,
		doc:      doc,
		executor: executor,
		server:   server,
		logger:   logger.With("component", "subgraph-gateway", "service", svc.Name),

		startTimeout: 5 * time.Second,
	}
	if deps.NATSClient != nil {
		var registrar metric.MetricsRegistrar
		if deps.Metrics != nil {
			registrar = deps.Metrics
		}
		g.entities = NewEntityHandler(deps.NATSClient, resolver, svc.Name, config.NATSSubjects, registrar, logger)

		client := deps.NATSClient
		server.Health().Register("nats", health.ErrorProbe(false, func(context.Context) error {
			if !client.IsHealthy() {
				return errors.WrapTransient(errors.ErrNoConnection, "Gateway", "Health",
					"nats "+client.Status().String())
			}
			return nil
		}))
	}
	for name, probe := range deps.Probes {
		server.Health().Register(name, probe)
	}
	return g, nil
}

// Document returns the composed subgraph document.
func (g *Gateway) Document() *schema.Document {
	return g.doc
}

// Executor returns the query executor.
func (g *Gateway) Executor() *Executor {
	return g.executor
}

// Server returns the HTTP server.
func (g *Gateway) Server() *Server {
	return g.server
}

// SchemaPath returns where the SDL was written, or "" before Start.
func (g *Gateway) SchemaPath() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.schemaAt
}

// Start writes the subgraph SDL, starts the entities endpoint and serves
// HTTP until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start", "gateway already running")
	}

	path, err := g.doc.WriteFile(g.config.SchemaDir)
	if err != nil {
		g.running.Store(false)
		return err
	}
	g.mu.Lock()
	g.startTime = time.Now()
	g.schemaAt = path
	g.mu.Unlock()
	g.logger.Info("Subgraph schema written", "path", path)

	if g.entities != nil {
		if err := g.entities.Start(ctx); err != nil {
			g.running.Store(false)
			return errors.WrapFatal(err, "Gateway", "Start", "start entities endpoint")
		}
	}

	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan struct{})
	errChan := make(chan error, 1)
	go func() {
		if err := g.server.Start(serverCtx, ready); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ready:
		g.logger.Info("Subgraph gateway started", "address", g.server.Addr())
	case err := <-errChan:
		g.abortStart()
		return err
	case <-time.After(g.startTimeout):
		cancel()
		g.abortStart()
		return errors.WrapFatal(errors.ErrConnectionTimeout, "Gateway", "Start",
			"server failed to start within timeout")
	}

	select {
	case <-ctx.Done():
		g.logger.Info("Subgraph gateway context cancelled")
	case err := <-errChan:
		_ = g.Stop(5 * time.Second)
		return err
	}
	return g.Stop(30 * time.Second)
}

// abortStart undoes a Start whose HTTP server never came up. The server
// goroutine shuts itself down once its context is cancelled.
func (g *Gateway) abortStart() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}
	if g.entities != nil {
		if err := g.entities.Stop(5 * time.Second); err != nil {
			g.logger.Warn("Failed to stop entities endpoint", "error", err)
		}
	}
	g.logger.Warn("Subgraph gateway failed to start")
}

// Stop gracefully stops the gateway
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.CompareAndSwap(true, false) {
		return nil
	}
	g.logger.Info("Subgraph gateway stopping")

	var errs []error
	if err := g.server.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	if g.entities != nil {
		if err := g.entities.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	g.logger.Info("Subgraph gateway stopped")
	return nil
}

// Check runs the health probes of the gateway and its dependencies.
func (g *Gateway) Check(ctx context.Context) health.Status {
	return g.server.Health().Check(ctx, g.service)
}

// Health returns the current health status
func (g *Gateway) Health() HealthStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	healthy := g.running.Load() && g.server.IsRunning()
	var uptime time.Duration
	if healthy {
		uptime = time.Since(g.startTime)
	}
	return HealthStatus{
		Healthy:   healthy,
		LastCheck: time.Now(),
		Uptime:    uptime,
		Service:   g.service,
	}
}
