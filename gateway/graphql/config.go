package graphql

import (
	"fmt"
	"regexp"
	"time"

	"github.com/c360/fedgraph/errors"
)

// Config holds configuration for a subgraph's GraphQL endpoint
type Config struct {
	// BindAddress is the HTTP bind address (default: ":8080")
	BindAddress string `json:"bind_address"`

	// Path is the GraphQL endpoint path (default: "/graphql")
	Path string `json:"path"`

	// EnableCORS enables CORS headers
	EnableCORS bool `json:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (default: ["*"])
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// TimeoutStr is the per-request timeout (default: "30s")
	TimeoutStr string `json:"timeout,omitempty"`

	// MaxQueryDepth limits selection nesting depth (default: 10)
	MaxQueryDepth int `json:"max_query_depth,omitempty"`

	// LookupTimeoutStr bounds each entity lookup (default: "2s")
	LookupTimeoutStr string `json:"lookup_timeout,omitempty"`

	// BatchParallelism limits concurrent lookups within one batch (default: 16)
	BatchParallelism int `json:"batch_parallelism,omitempty"`

	// SchemaDir is where the subgraph SDL is written at start-up (default: ".")
	SchemaDir string `json:"schema_dir,omitempty"`

	// NATSSubjects configures the NATS entity resolution endpoint
	NATSSubjects NATSSubjectsConfig `json:"nats_subjects"`

	timeout       time.Duration
	lookupTimeout time.Duration
}

// NATSSubjectsConfig defines the NATS subjects of the entity endpoint.
type NATSSubjectsConfig struct {
	// Prefix of the entities subject <prefix>.<service>.entities (default: "fedgraph")
	Prefix string `json:"prefix"`

	// Queue group shared by replicas of a subgraph (default: "<service>-entities")
	Queue string `json:"queue,omitempty"`

	// Workers handling entity requests (default: 8)
	Workers int `json:"workers,omitempty"`

	// QueueSize of the worker pool (default: 256)
	QueueSize int `json:"queue_size,omitempty"`
}

var subjectTokenRE = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// Validate fills defaults and ensures the configuration is valid
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8080"
	}

	if c.Path == "" {
		c.Path = "/graphql"
	}
	if c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"path must start with /")
	}

	timeout, err := parseDuration(c.TimeoutStr, 30*time.Second, "timeout")
	if err != nil {
		return err
	}
	if timeout < 100*time.Millisecond || timeout > 5*time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 100ms and 5m")
	}
	c.timeout = timeout

	lookupTimeout, err := parseDuration(c.LookupTimeoutStr, 2*time.Second, "lookup_timeout")
	if err != nil {
		return err
	}
	if lookupTimeout <= 0 || lookupTimeout > timeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"lookup_timeout must be positive and not exceed timeout")
	}
	c.lookupTimeout = lookupTimeout

	if c.MaxQueryDepth == 0 {
		c.MaxQueryDepth = 10
	}
	if c.MaxQueryDepth < 1 || c.MaxQueryDepth > 50 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_query_depth must be between 1 and 50")
	}

	if c.BatchParallelism == 0 {
		c.BatchParallelism = 16
	}
	if c.BatchParallelism < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"batch_parallelism must be positive")
	}

	if c.SchemaDir == "" {
		c.SchemaDir = "."
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}

	if err := c.NATSSubjects.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "NATS subjects validation")
	}

	return nil
}

func parseDuration(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("invalid %s format: %s", field, s))
	}
	return d, nil
}

// Timeout returns the parsed request timeout
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// LookupTimeout returns the parsed per-entity lookup timeout
func (c *Config) LookupTimeout() time.Duration {
	return c.lookupTimeout
}

// Validate fills defaults and checks the subject prefix.
func (n *NATSSubjectsConfig) Validate() error {
	if n.Prefix == "" {
		n.Prefix = "fedgraph"
	}
	if !subjectTokenRE.MatchString(n.Prefix) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "NATSSubjectsConfig", "Validate",
			fmt.Sprintf("invalid subject prefix %q", n.Prefix))
	}
	if n.Workers == 0 {
		n.Workers = 8
	}
	if n.QueueSize == 0 {
		n.QueueSize = 256
	}
	if n.Workers < 0 || n.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "NATSSubjectsConfig", "Validate",
			"workers and queue_size must be positive")
	}
	return nil
}

// EntitiesSubject returns the entity resolution subject of service.
func (n NATSSubjectsConfig) EntitiesSubject(service string) string {
	return n.Prefix + "." + service + ".entities"
}

// QueueGroup returns the queue group of service.
func (n NATSSubjectsConfig) QueueGroup(service string) string {
	if n.Queue != "" {
		return n.Queue
	}
	return service + "-entities"
}

// DefaultConfig returns the default endpoint configuration
func DefaultConfig() Config {
	return Config{
		BindAddress:      ":8080",
		Path:             "/graphql",
		EnableCORS:       true,
		CORSOrigins:      []string{"*"},
		TimeoutStr:       "30s",
		MaxQueryDepth:    10,
		LookupTimeoutStr: "2s",
		BatchParallelism: 16,
		SchemaDir:        ".",
		NATSSubjects: NATSSubjectsConfig{
			Prefix:    "fedgraph",
			Workers:   8,
			QueueSize: 256,
		},
	}
}
