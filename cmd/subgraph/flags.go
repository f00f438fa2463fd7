package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/c360/fedgraph/subgraphs"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	Service         string
	StoreBackend    string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	MetricsAddr     string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	PrintSchema     bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("FEDGRAPH_CONFIG", ""),
		"Path to a JSON configuration file (env: FEDGRAPH_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("FEDGRAPH_CONFIG", ""),
		"Path to a JSON configuration file (env: FEDGRAPH_CONFIG)")

	fs.StringVar(&cfg.Service, "service", "",
		fmt.Sprintf("Subgraph to serve: %s (env: FEDGRAPH_SERVICE)", strings.Join(subgraphs.Names(), ", ")))

	fs.StringVar(&cfg.StoreBackend, "store", "",
		"Record store: memory, kv, redis (env: FEDGRAPH_STORE_BACKEND)")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (env: FEDGRAPH_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (env: FEDGRAPH_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("FEDGRAPH_DEBUG", false),
		"Enable debug logging (env: FEDGRAPH_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FEDGRAPH_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FEDGRAPH_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr",
		getEnv("FEDGRAPH_METRICS_ADDR", ""),
		"Serve /metrics on a dedicated address as well (env: FEDGRAPH_METRICS_ADDR)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&cfg.PrintSchema, "print-schema", false, "Print the subgraph SDL and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.Service != "" && !slices.Contains(subgraphs.Names(), cfg.Service) {
		return fmt.Errorf("unknown service: %s", cfg.Service)
	}

	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(fs.Output(), `%s - federated entity subgraph

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(fs.Output(), `
Examples:
  # Serve the market subgraph from its built-in catalog
  %s --service=market

  # Serve inventory with records in a NATS KV bucket
  export FEDGRAPH_NATS_URLS=nats://localhost:4222
  %s --service=inventory --store=kv

  # Validate configuration only
  %s --config=configs/market.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
