package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/gateway/graphql"
	"github.com/c360/fedgraph/store"
)

// Store backends
const (
	StoreMemory = "memory" // Static in-process catalog
	StoreKV     = "kv"     // NATS JetStream KV bucket
	StoreRedis  = "redis"  // Redis keys
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the complete configuration of one subgraph process
type Config struct {
	Service string         `json:"service"`
	GraphQL graphql.Config `json:"graphql"`
	NATS    NATSConfig     `json:"nats"`
	Store   StoreConfig    `json:"store"`
	Log     LogConfig      `json:"log"`
}

// NATSConfig defines NATS connection settings. NATS is optional; without
// URLs the entities endpoint is not served.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// Enabled reports whether a NATS server is configured
func (n NATSConfig) Enabled() bool {
	return len(n.URLs) > 0
}

// URL returns the comma-separated server list understood by nats.Connect
func (n NATSConfig) URL() string {
	return strings.Join(n.URLs, ",")
}

// StoreConfig selects where entity records are read from
type StoreConfig struct {
	Backend string `json:"backend"`
	// Seed writes the subgraph's built-in catalog into the backend at start-up
	Seed  bool        `json:"seed"`
	KV    KVConfig    `json:"kv"`
	Redis RedisConfig `json:"redis"`
	Cache CacheConfig `json:"cache"`
}

// CacheConfig puts an LRU record cache in front of the kv and redis
// backends. Size 0 disables it.
type CacheConfig struct {
	Size int           `json:"size,omitempty"`
	TTL  time.Duration `json:"ttl,omitempty"` // 0 = entries live until evicted
}

// KVConfig defines the JetStream KV bucket backing a subgraph
type KVConfig struct {
	Bucket   string        `json:"bucket,omitempty"` // Default: fedgraph_<service>
	TTL      time.Duration `json:"ttl,omitempty"`    // 0 = no expiration
	History  int           `json:"history,omitempty"`
	Replicas int           `json:"replicas,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"` // Per-operation timeout
}

// RedisConfig defines the Redis connection backing a subgraph
type RedisConfig struct {
	Addr        string        `json:"addr,omitempty"`
	Username    string        `json:"username,omitempty"`
	Password    string        `json:"password,omitempty"`
	DB          int           `json:"db,omitempty"`
	Prefix      string        `json:"prefix,omitempty"`
	DialTimeout time.Duration `json:"dial_timeout,omitempty"`
}

// LogConfig defines logging output
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Validate fills defaults and checks that the config is usable
func (c *Config) Validate() error {
	if c.Service == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "service is required")
	}
	c.Service = strings.ToLower(c.Service)
	if !isValidNATSSubjectPart(c.Service) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("service %q is not valid in NATS subjects", c.Service))
	}

	if err := c.GraphQL.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "graphql")
	}
	if err := c.NATS.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(c.Service, c.NATS); err != nil {
		return err
	}
	return c.Log.validate()
}

func (n *NATSConfig) validate() error {
	if n.MaxReconnects == 0 {
		n.MaxReconnects = -1
	}
	if n.ReconnectWait == 0 {
		n.ReconnectWait = 2 * time.Second
	}
	if n.Timeout == 0 {
		n.Timeout = 5 * time.Second
	}
	if n.ReconnectWait < 0 || n.Timeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"nats durations must be positive")
	}
	for i, url := range n.URLs {
		if strings.TrimSpace(url) == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("nats.urls[%d] is empty", i))
		}
	}
	return nil
}

func (s *StoreConfig) validate(service string, nats NATSConfig) error {
	if s.Backend == "" {
		s.Backend = StoreMemory
	}

	switch s.Backend {
	case StoreMemory:
	case StoreKV:
		if !nats.Enabled() {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"store backend kv requires nats.urls")
		}
		if s.KV.Bucket == "" {
			s.KV.Bucket = "fedgraph_" + strings.ReplaceAll(service, ".", "_")
		}
		if !isValidBucketName(s.KV.Bucket) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("invalid kv bucket name %q", s.KV.Bucket))
		}
		if s.KV.History == 0 {
			s.KV.History = 1
		}
		if s.KV.Timeout == 0 {
			s.KV.Timeout = 2 * time.Second
		}
		if s.KV.History < 1 || s.KV.History > 64 || s.KV.Replicas < 0 || s.KV.TTL < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"kv history must be 1-64, replicas and ttl non-negative")
		}
	case StoreRedis:
		if s.Redis.Addr == "" {
			s.Redis.Addr = "localhost:6379"
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = store.DefaultRedisPrefix
		}
		if s.Redis.DialTimeout == 0 {
			s.Redis.DialTimeout = 5 * time.Second
		}
		if s.Redis.DB < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"redis db must be non-negative")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown store backend %q (want memory, kv or redis)", s.Backend))
	}
	if s.Cache.Size < 0 || s.Cache.TTL < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"cache size and ttl must be non-negative")
	}
	return nil
}

func (l *LogConfig) validate() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = LogFormatJSON
	}
	l.Level = strings.ToLower(l.Level)
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, l.Level) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid log level %q", l.Level))
	}
	if l.Format != LogFormatJSON && l.Format != LogFormatText {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid log format %q", l.Format))
	}
	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

func isValidBucketName(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "FEDGRAPH",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers, then applies environment
// overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		cfg, err = l.mergeFromMap(cfg, rawConfig)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the default configuration. Service is left empty.
func Defaults() *Config {
	return &Config{
		GraphQL: graphql.DefaultConfig(),
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Seed:    true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatJSON,
		},
	}
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	if err := l.parseDurations(rawConfig); err != nil {
		return nil, err
	}
	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(l.deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}

// durationFields lists the time.Duration settings that may be written as
// strings in config files
var durationFields = [][]string{
	{"nats", "reconnect_wait"},
	{"nats", "timeout"},
	{"store", "kv", "ttl"},
	{"store", "kv", "timeout"},
	{"store", "redis", "dial_timeout"},
	{"store", "cache", "ttl"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func (l *Loader) parseDurations(data map[string]any) error {
	for _, path := range durationFields {
		parent := data
		for _, key := range path[:len(path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		field := path[len(path)-1]
		s, ok := parent[field].(string)
		if !ok {
			continue
		}
		d, err := parseDurationWithDays(s)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		parent[field] = d.Nanoseconds()
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"SERVICE", func(v string) error { cfg.Service = v; return nil }},
		{"BIND_ADDRESS", func(v string) error { cfg.GraphQL.BindAddress = v; return nil }},
		{"SCHEMA_DIR", func(v string) error { cfg.GraphQL.SchemaDir = v; return nil }},
		{"NATS_URLS", func(v string) error { cfg.NATS.URLs = strings.Split(v, ","); return nil }},
		{"NATS_USERNAME", func(v string) error { cfg.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.NATS.Token = v; return nil }},
		{"STORE_BACKEND", func(v string) error { cfg.Store.Backend = v; return nil }},
		{"STORE_SEED", func(v string) error {
			seed, err := strconv.ParseBool(v)
			cfg.Store.Seed = seed
			return err
		}},
		{"KV_BUCKET", func(v string) error { cfg.Store.KV.Bucket = v; return nil }},
		{"REDIS_ADDR", func(v string) error { cfg.Store.Redis.Addr = v; return nil }},
		{"REDIS_PASSWORD", func(v string) error { cfg.Store.Redis.Password = v; return nil }},
		{"REDIS_PREFIX", func(v string) error { cfg.Store.Redis.Prefix = v; return nil }},
		{"LOG_LEVEL", func(v string) error { cfg.Log.Level = v; return nil }},
		{"LOG_FORMAT", func(v string) error { cfg.Log.Format = v; return nil }},
	}

	for _, o := range overrides {
		key := l.envPrefix + "_" + o.name
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(l.envPrefix, key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
	}
	return nil
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writeConfigFile(path, data)
}

// Redacted returns a copy without credentials
func (c *Config) Redacted() *Config {
	out := *c
	out.NATS.URLs = slices.Clone(c.NATS.URLs)
	if out.NATS.Password != "" {
		out.NATS.Password = "***"
	}
	if out.NATS.Token != "" {
		out.NATS.Token = "***"
	}
	if out.Store.Redis.Password != "" {
		out.Store.Redis.Password = "***"
	}
	return &out
}

// String returns a JSON representation of the config with credentials redacted
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
