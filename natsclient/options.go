package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/fedgraph/metric"
)

// ClientOption configures a Client. Options that receive inconsistent
// values fail NewClient with an invalid-config error.
type ClientOption func(*Client) error

// Auth holds NATS credentials. Either User and Password or Token may be
// set, not both.
type Auth struct {
	User     string
	Password string
	Token    string
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithReconnect sets how often and how fast the connection is re-established
// after a loss. max of -1 retries forever; wait of zero keeps the default.
func WithReconnect(max int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		if max < -1 {
			return fmt.Errorf("max reconnects must be -1 or more, got %d", max)
		}
		if wait < 0 {
			return fmt.Errorf("reconnect wait must not be negative, got %v", wait)
		}
		c.maxReconnects = max
		if wait > 0 {
			c.reconnectWait = wait
		}
		return nil
	}
}

// WithTimeout bounds connecting and is the default for requests without a
// deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithCircuitBreaker opens the circuit after threshold consecutive connect
// failures. The wait before the next attempt doubles per failure up to
// maxBackoff.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit threshold must be at least 1, got %d", threshold)
		}
		if maxBackoff < time.Second {
			return fmt.Errorf("max backoff must be at least 1s, got %v", maxBackoff)
		}
		c.circuitThreshold = threshold
		c.maxBackoff = maxBackoff
		return nil
	}
}

// WithAuth sets the credentials presented on connect. A zero Auth is a
// no-op.
func WithAuth(auth Auth) ClientOption {
	return func(c *Client) error {
		if auth.Token != "" && auth.User != "" {
			return fmt.Errorf("token and user authentication are mutually exclusive")
		}
		if auth.User == "" && auth.Password != "" {
			return fmt.Errorf("password set without user")
		}
		c.username = auth.User
		c.password = auth.Password
		c.token = auth.Token
		return nil
	}
}

// WithName sets the client name reported to the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithMetrics records connection status, RTT and reconnects.
func WithMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithHealthChange calls fn whenever the connection is gained or lost.
func WithHealthChange(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}
