// Package main runs one federation subgraph over HTTP and, when NATS is
// configured, over a NATS request/reply entities endpoint.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/c360/fedgraph/config"
	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/gateway/graphql"
	"github.com/c360/fedgraph/health"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/natsclient"
	"github.com/c360/fedgraph/pkg/cache"
	"github.com/c360/fedgraph/pkg/retry"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/schema"
	"github.com/c360/fedgraph/store"
	"github.com/c360/fedgraph/subgraphs"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "fedgraph-subgraph"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (build: %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		fs.SetOutput(stdout)
		printDetailedHelp(fs)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format, cfg.Service)
	slog.SetDefault(logger)

	def, err := subgraphs.Get(cfg.Service)
	if err != nil {
		return err
	}

	if cliCfg.PrintSchema {
		reg, err := def.Registry()
		if err != nil {
			return err
		}
		doc, err := schema.Compose(def.Name, reg)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, doc.SDL)
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, def, logger, cliCfg)
}

// loadConfig reads the optional config file, applies environment and flag
// overrides, then validates.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Service != "" {
		cfg.Service = cliCfg.Service
	}
	if cliCfg.StoreBackend != "" {
		cfg.Store.Backend = cliCfg.StoreBackend
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	def subgraphs.Definition,
	logger *slog.Logger,
	cliCfg *CLIConfig,
) error {
	shutdownTimeout := cliCfg.ShutdownTimeout
	logger.Info("Starting subgraph",
		"store", cfg.Store.Backend,
		"nats", cfg.NATS.Enabled(),
		"bind", cfg.GraphQL.BindAddress)

	metricsRegistry := metric.NewMetricsRegistry()
	if cliCfg.MetricsAddr != "" {
		metricsServer := metric.NewServer(cliCfg.MetricsAddr, "/metrics", metricsRegistry)
		if err := metricsServer.Start(); err != nil {
			return err
		}
		logger.Info("Metrics server started", "address", metricsServer.Address())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = metricsServer.Stop(stopCtx)
		}()
	}

	var natsClient *natsclient.Client
	if cfg.NATS.Enabled() {
		client, err := connectToNATS(ctx, cfg, metricsRegistry.CoreMetrics(), logger)
		if err != nil {
			return err
		}
		natsClient = client
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := natsClient.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}()
	}

	reg, err := def.Registry()
	if err != nil {
		return err
	}

	backing, closeStore, err := openStore(ctx, cfg, def, reg, natsClient, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := def.New(reg, backing)
	if err != nil {
		return err
	}

	deps := graphql.Dependencies{
		NATSClient: natsClient,
		Metrics:    metricsRegistry,
		Logger:     logger,
	}
	if p, ok := backing.(store.Pinger); ok {
		deps.Probes = map[string]health.Probe{"store": health.ErrorProbe(true, p.Ping)}
	}

	gateway, err := graphql.NewGateway(cfg.GraphQL, svc, deps)
	if err != nil {
		return err
	}

	if err := gateway.Start(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Subgraph stopped")
	return nil
}

func connectToNATS(
	ctx context.Context,
	cfg *config.Config,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(cfg.NATS.URL(),
		natsclient.WithLogger(logger),
		natsclient.WithReconnect(cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithAuth(natsclient.Auth{
			User:     cfg.NATS.Username,
			Password: cfg.NATS.Password,
			Token:    cfg.NATS.Token,
		}),
		natsclient.WithName(appName+"-"+cfg.Service),
		natsclient.WithMetrics(metrics),
		natsclient.WithHealthChange(func(healthy bool) {
			if healthy {
				logger.Info("NATS connection available")
				return
			}
			logger.Warn("NATS connection lost")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connectRetry := retry.DefaultConfig()
	connectRetry.OnRetry = func(err error, wait time.Duration) {
		logger.Warn("NATS connect failed, retrying", "error", err, "wait", wait)
	}
	if err := client.ConnectWithRetry(ctx, connectRetry); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(waitCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	logger.Info("Connected to NATS", "url", cfg.NATS.URL())
	return client, nil
}

// openStore builds the lookup backing the subgraph's resolvers. The
// returned func releases the backend's connections.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	def subgraphs.Definition,
	reg *registry.Registry,
	natsClient *natsclient.Client,
	metrics metric.MetricsRegistrar,
	logger *slog.Logger,
) (entity.Lookup, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case config.StoreMemory:
		mem, err := store.NewMemory(reg, def.Entries()...)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Using in-memory store", "records", mem.Len())
		return mem, noop, nil

	case config.StoreKV:
		if natsClient == nil {
			return nil, noop, errors.WrapInvalid(errors.ErrInvalidConfig, "main", "openStore",
				"kv store requires a NATS connection")
		}
		bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:   cfg.Store.KV.Bucket,
			TTL:      cfg.Store.KV.TTL,
			History:  uint8(cfg.Store.KV.History),
			Replicas: cfg.Store.KV.Replicas,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open KV bucket %s: %w", cfg.Store.KV.Bucket, err)
		}
		kv := store.NewKV(reg, natsclient.NewKVStore(bucket, cfg.Store.KV.Timeout))
		if err := seed(ctx, cfg, def, kv, logger); err != nil {
			return nil, noop, err
		}
		logger.Info("Using KV store", "bucket", cfg.Store.KV.Bucket)
		cached, err := withCache(cfg, reg, kv, metrics)
		if err != nil {
			return nil, noop, err
		}
		return cached, noop, nil

	case config.StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       []string{cfg.Store.Redis.Addr},
			Username:    cfg.Store.Redis.Username,
			Password:    cfg.Store.Redis.Password,
			DB:          cfg.Store.Redis.DB,
			DialTimeout: cfg.Store.Redis.DialTimeout,
		})
		rs := store.NewRedis(reg, client, cfg.Store.Redis.Prefix)
		closeFn := func() {
			if err := rs.Close(); err != nil {
				logger.Warn("Redis close failed", "error", err)
			}
		}
		pingRetry := retry.Quick()
		pingRetry.OnRetry = func(err error, wait time.Duration) {
			logger.Debug("Redis not ready", "error", err, "wait", wait)
		}
		if err := retry.Do(ctx, pingRetry, func() error { return rs.Ping(ctx) }); err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("connect to redis %s: %w", cfg.Store.Redis.Addr, err)
		}
		if err := seed(ctx, cfg, def, rs, logger); err != nil {
			closeFn()
			return nil, noop, err
		}
		logger.Info("Using Redis store", "addr", cfg.Store.Redis.Addr, "prefix", cfg.Store.Redis.Prefix)
		cached, err := withCache(cfg, reg, rs, metrics)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		return cached, closeFn, nil
	}

	return nil, noop, errors.WrapInvalid(errors.ErrInvalidConfig, "main", "openStore",
		"unknown store backend "+cfg.Store.Backend)
}

// withCache fronts a remote store with the record cache when one is
// configured.
func withCache(cfg *config.Config, reg *registry.Registry, backing entity.Lookup, metrics metric.MetricsRegistrar) (entity.Lookup, error) {
	if cfg.Store.Cache.Size == 0 {
		return backing, nil
	}
	opts := []cache.Option{cache.WithTTL(cfg.Store.Cache.TTL)}
	if metrics != nil {
		opts = append(opts, cache.WithMetrics(metrics, cfg.Service+"_records"))
	}
	records, err := cache.New[entity.Record](cfg.Store.Cache.Size, opts...)
	if err != nil {
		return nil, err
	}
	return store.NewCached(reg, backing, records), nil
}

func seed(ctx context.Context, cfg *config.Config, def subgraphs.Definition, w store.Writer, logger *slog.Logger) error {
	if !cfg.Store.Seed {
		return nil
	}
	entries := def.Entries()
	if err := store.Seed(ctx, w, entries...); err != nil {
		return fmt.Errorf("seed %s store: %w", cfg.Store.Backend, err)
	}
	logger.Info("Seeded store", "records", len(entries))
	return nil
}
