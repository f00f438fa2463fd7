package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fedgraph/config"
	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/schema"
	"github.com/c360/fedgraph/store"
	"github.com/c360/fedgraph/subgraphs"
	"github.com/c360/fedgraph/subgraphs/market"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFlags(t *testing.T) {
	t.Setenv("FEDGRAPH_SHUTDOWN_TIMEOUT", "5s")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-service", "market", "-store", "redis", "-debug"})
	require.NoError(t, err)

	assert.Equal(t, "market", cfg.Service)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "debug", cfg.LogLevel, "debug overrides the log level")
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, validateFlags(cfg))
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CLIConfig
		wantErr bool
	}{
		{"valid", CLIConfig{Service: "inventory", ShutdownTimeout: time.Second}, false},
		{"version skips checks", CLIConfig{ShowVersion: true}, false},
		{"unknown service", CLIConfig{Service: "billing", ShutdownTimeout: time.Second}, true},
		{"missing config file", CLIConfig{ConfigPath: "/nonexistent.json", ShutdownTimeout: time.Second}, true},
		{"log level", CLIConfig{LogLevel: "trace", ShutdownTimeout: time.Second}, true},
		{"log format", CLIConfig{LogFormat: "xml", ShutdownTimeout: time.Second}, true},
		{"shutdown timeout", CLIConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json", "market")

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "market", line["service"])
	assert.Equal(t, "value", line["key"])
	process, ok := line["process"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Version, process["version"])
	assert.Equal(t, appName, process["app"])
}

func TestSetupLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "bogus", "text", "market").Debug("hidden")
	assert.Empty(t, buf.String(), "unknown levels fall back to info")

	setupLogger(&buf, "DEBUG", "text", "market").Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "source=")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"service": "market", "log": {"level": "warn"}}`), 0644))

	cfg, err := loadConfig(&CLIConfig{ConfigPath: path, Service: "inventory", LogFormat: "text"})
	require.NoError(t, err)
	assert.Equal(t, "inventory", cfg.Service, "flags override the file")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	_, err = loadConfig(&CLIConfig{ConfigPath: path, StoreBackend: "kv"})
	assert.Error(t, err, "kv requires NATS")
}

func TestRun_VersionAndSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-version"}, &out))
	assert.Contains(t, out.String(), Version)

	out.Reset()
	require.NoError(t, run([]string{"-service", "inventory", "-print-schema", "-log-level", "error"}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "extend schema @link(url: \""+schema.FederationURL+"\""),
		"printed SDL opens with the federation link:\n%s", out.String())
	assert.Contains(t, out.String(), "type Market")
	assert.Contains(t, out.String(), "@key")

	assert.Error(t, run([]string{"-service", "billing"}, &out))
}

func openTestStore(t *testing.T, cfg *config.Config) entity.Lookup {
	t.Helper()
	require.NoError(t, cfg.Validate())
	def, err := subgraphs.Get(cfg.Service)
	require.NoError(t, err)
	reg, err := def.Registry()
	require.NoError(t, err)

	lookup, closeFn, err := openStore(context.Background(), cfg, def, reg, nil, nil, discardLogger())
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return lookup
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Service = market.Service

	lookup := openTestStore(t, cfg)
	rec, ok, err := lookup.LookupByKey(context.Background(), market.TypeMarket, entity.Key{"id": "A"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "name a", rec["name"])
}

func TestOpenStore_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.Defaults()
	cfg.Service = market.Service
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.Cache.Size = 16

	lookup := openTestStore(t, cfg)
	assert.NotEmpty(t, mr.Keys(), "catalog is seeded")
	cached, ok := lookup.(*store.Cached)
	require.True(t, ok, "cache fronts the redis store")
	require.NoError(t, cached.Ping(context.Background()))

	rec, ok, err := lookup.LookupByKey(context.Background(), market.TypeMarket, entity.Key{"id": "B"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "name b", rec["name"])
}

func TestOpenStore_Errors(t *testing.T) {
	def, err := subgraphs.Get(market.Service)
	require.NoError(t, err)
	reg, err := def.Registry()
	require.NoError(t, err)

	t.Run("kv without nats", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Service = market.Service
		cfg.Store.Backend = config.StoreKV
		_, _, err := openStore(context.Background(), cfg, def, reg, nil, nil, discardLogger())
		assert.Error(t, err)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Service = market.Service
		cfg.Store.Backend = config.StoreRedis
		require.NoError(t, cfg.Validate())
		cfg.Store.Redis.Addr = "127.0.0.1:1"
		cfg.Store.Redis.DialTimeout = 100 * time.Millisecond
		_, _, err := openStore(context.Background(), cfg, def, reg, nil, nil, discardLogger())
		assert.Error(t, err)
	})
}
