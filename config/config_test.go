package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fedgraph/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.True(t, cfg.Store.Seed)
	assert.False(t, cfg.NATS.Enabled())
	assert.Equal(t, ":8080", cfg.GraphQL.BindAddress)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, `{
		"service": "Market",
		"graphql": {"bind_address": ":9090", "timeout": "10s"},
		"nats": {
			"urls": ["nats://localhost:4222", "nats://localhost:4223"],
			"reconnect_wait": "5s"
		},
		"store": {
			"backend": "kv",
			"kv": {"ttl": "14d", "timeout": "500ms"},
			"cache": {"size": 256, "ttl": "30s"}
		},
		"log": {"level": "DEBUG", "format": "text"}
	}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "market", cfg.Service)
	assert.Equal(t, ":9090", cfg.GraphQL.BindAddress)
	assert.Equal(t, 10*time.Second, cfg.GraphQL.Timeout())
	assert.Equal(t, "/graphql", cfg.GraphQL.Path, "unset nested fields keep defaults")
	assert.Equal(t, "nats://localhost:4222,nats://localhost:4223", cfg.NATS.URL())
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, 5*time.Second, cfg.NATS.Timeout)
	assert.Equal(t, 14*24*time.Hour, cfg.Store.KV.TTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.KV.Timeout)
	assert.Equal(t, "fedgraph_market", cfg.Store.KV.Bucket)
	assert.Equal(t, CacheConfig{Size: 256, TTL: 30 * time.Second}, cfg.Store.Cache)
	assert.True(t, cfg.Store.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, LogFormatText, cfg.Log.Format)
}

func TestLoader_Layers(t *testing.T) {
	base := writeConfig(t, `{"service": "market", "store": {"backend": "redis", "redis": {"addr": "redis:6379"}}}`)
	override := writeConfig(t, `{"store": {"seed": false, "redis": {"db": 2}}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.False(t, cfg.Store.Seed)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, "fedgraph:", cfg.Store.Redis.Prefix)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("FEDGRAPH_SERVICE", "inventory")
	t.Setenv("FEDGRAPH_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("FEDGRAPH_STORE_BACKEND", "kv")
	t.Setenv("FEDGRAPH_STORE_SEED", "false")
	t.Setenv("FEDGRAPH_KV_BUCKET", "items")
	t.Setenv("FEDGRAPH_LOG_FORMAT", "text")

	path := writeConfig(t, `{"service": "market", "store": {"backend": "memory"}}`)
	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "inventory", cfg.Service)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, StoreKV, cfg.Store.Backend)
	assert.False(t, cfg.Store.Seed)
	assert.Equal(t, "items", cfg.Store.KV.Bucket)
	assert.Equal(t, LogFormatText, cfg.Log.Format)
}

func TestLoader_Errors(t *testing.T) {
	t.Run("bad boolean in environment", func(t *testing.T) {
		t.Setenv("FEDGRAPH_STORE_SEED", "perhaps")
		_, err := NewLoader().Load()
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := NewLoader().LoadFile(writeConfig(t, `{"nats": {"timeout": "soon"}}`))
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("not JSON", func(t *testing.T) {
		_, err := NewLoader().LoadFile(writeConfig(t, `service = market`))
		assert.Error(t, err)
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))
		_, err := NewLoader().LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with service", func(*Config) {}, false},
		{"missing service", func(c *Config) { c.Service = "" }, true},
		{"service with spaces", func(c *Config) { c.Service = "my market" }, true},
		{"invalid graphql path", func(c *Config) { c.GraphQL.Path = "graphql" }, true},
		{"kv without nats", func(c *Config) { c.Store.Backend = StoreKV }, true},
		{"kv with nats", func(c *Config) {
			c.Store.Backend = StoreKV
			c.NATS.URLs = []string{"nats://localhost:4222"}
		}, false},
		{"kv bucket name", func(c *Config) {
			c.Store.Backend = StoreKV
			c.NATS.URLs = []string{"nats://localhost:4222"}
			c.Store.KV.Bucket = "a.b"
		}, true},
		{"kv history", func(c *Config) {
			c.Store.Backend = StoreKV
			c.NATS.URLs = []string{"nats://localhost:4222"}
			c.Store.KV.History = 65
		}, true},
		{"redis", func(c *Config) { c.Store.Backend = StoreRedis }, false},
		{"redis db", func(c *Config) { c.Store.Backend = StoreRedis; c.Store.Redis.DB = -1 }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, true},
		{"negative cache size", func(c *Config) { c.Store.Cache.Size = -1 }, true},
		{"empty nats url", func(c *Config) { c.NATS.URLs = []string{" "} }, true},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Service = "market"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_SaveAndReload(t *testing.T) {
	cfg := Defaults()
	cfg.Service = "market"
	cfg.Store.Backend = StoreRedis
	cfg.Store.Redis.DialTimeout = 3 * time.Second
	require.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loader := NewLoader()
	loader.EnableValidation(true)
	reloaded, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Store, reloaded.Store)
	assert.Equal(t, cfg.NATS, reloaded.NATS)
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.Password = "hunter2"
	cfg.Store.Redis.Password = "swordfish"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "swordfish")
	assert.Equal(t, 2, strings.Count(s, `"***"`))
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}
