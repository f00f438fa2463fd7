// Package natsclient manages the NATS connection of a subgraph: connection
// status with a circuit breaker, request/reply, queue subscriptions and
// JetStream key-value buckets.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the circuit breaker rejects connection
// attempts.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// MsgHandler handles one message. The context is cancelled when the
// subscription's context is.
type MsgHandler func(ctx context.Context, msg *nats.Msg)

// Client manages one NATS connection.
type Client struct {
	url    string
	logger *slog.Logger

	status   atomic.Int32
	failures atomic.Int32

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Circuit breaker
	circuitFailures  atomic.Int32
	circuitThreshold int32
	backoff          atomic.Int64 // time.Duration
	maxBackoff       time.Duration

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	username      string
	password      string
	token         string

	metrics        *metric.Metrics
	onHealthChange func(bool)

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient", "url", url)
	c.backoff.Store(int64(time.Second))
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(s == StatusConnected)
	}
}

// IsHealthy returns true if the connection is healthy
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the number of failed connection attempts since the last
// success.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the current circuit breaker backoff.
func (c *Client) Backoff() time.Duration {
	return time.Duration(c.backoff.Load())
}

// Conn returns the underlying connection, or nil.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) recordFailure() {
	c.failures.Add(1)
	if c.circuitFailures.Add(1) < c.circuitThreshold {
		return
	}
	c.circuitFailures.Store(0)

	current := c.Backoff()
	next := min(current*2, c.maxBackoff)
	c.backoff.Store(int64(next))

	if c.Status() != StatusCircuitOpen {
		c.setStatus(StatusCircuitOpen)
		c.logger.Warn("Circuit breaker opened", "backoff", current)
		time.AfterFunc(current, func() {
			if c.Status() == StatusCircuitOpen {
				c.setStatus(StatusDisconnected)
			}
		})
	}
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(int64(time.Second))
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect establishes the connection. Failed attempts count towards the
// circuit breaker.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn: conn, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
	}

	if res.err != nil {
		c.recordFailure()
		if c.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(res.conn)
	if err != nil {
		res.conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapFatal(err, "Client", "Connect", "initialise JetStream")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("Connected to NATS")
	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}
	return nil
}

// ConnectWithRetry calls Connect until it succeeds, a non-transient error
// occurs or the retry budget is spent.
func (c *Client) ConnectWithRetry(ctx context.Context, cfg retry.Config) error {
	return retry.Do(ctx, cfg, func() error {
		err := c.Connect(ctx)
		if err != nil && !errors.IsTransient(err) && !stderrors.Is(err, ErrCircuitOpen) {
			return retry.NonRetryable(err)
		}
		return err
	})
}

// WaitForConnection waits for the connection to be established
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "WaitForConnection", ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

// RTT returns the round-trip time to the NATS server
func (c *Client) RTT() (time.Duration, error) {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return 0, errors.ErrNoConnection
	}
	rtt, err := conn.RTT()
	if err == nil && c.metrics != nil {
		c.metrics.RecordNATSRTT(rtt)
	}
	return rtt, err
}

// Request sends data to subject and waits for the reply. NATS failures map
// onto the classified connection errors.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "Request", subject)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, mapRequestError(err, subject)
	}
	return msg.Data, nil
}

func mapRequestError(err error, subject string) error {
	switch {
	case stderrors.Is(err, nats.ErrNoResponders):
		return errors.WrapTransient(errors.ErrNoResponders, "Client", "Request", subject)
	case stderrors.Is(err, nats.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Request", subject)
	case stderrors.Is(err, nats.ErrConnectionClosed), stderrors.Is(err, nats.ErrDisconnected):
		return errors.WrapTransient(errors.ErrConnectionLost, "Client", "Request", subject)
	default:
		return errors.Wrap(err, "Client", "Request", subject)
	}
}

// QueueSubscribe delivers messages on subject to handler, load-balanced
// across members of queue. An empty queue subscribes without a group.
func (c *Client) QueueSubscribe(ctx context.Context, subject, queue string, handler MsgHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return errors.ErrNoConnection
	}

	cb := func(msg *nats.Msg) { handler(ctx, msg) }
	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = c.conn.Subscribe(subject, cb)
	} else {
		sub, err = c.conn.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return errors.WrapTransient(err, "Client", "QueueSubscribe", subject)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// CreateKeyValueBucket returns the bucket named in cfg, creating it if needed.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	if bucket, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		return bucket, nil
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil && isAlreadyExistsError(err) {
		// Lost a creation race.
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "bucket "+cfg.Bucket)
	}
	c.logger.Info("KV bucket ready", "bucket", cfg.Bucket)
	return bucket, nil
}

// GetKeyValueBucket gets an existing KV bucket
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "GetKeyValueBucket", "bucket "+name)
	}
	return bucket, nil
}

// Close unsubscribes everything and drains the connection.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	c.subs = nil

	if c.conn != nil {
		drained := make(chan error, 1)
		go func() { drained <- c.conn.Drain() }()

		select {
		case err := <-drained:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		case <-time.After(c.drainTimeout):
			errs = append(errs, fmt.Errorf("drain timeout after %v", c.drainTimeout))
		}
		c.conn.Close()
		c.conn = nil
		c.js = nil
	}

	c.username, c.password, c.token = "", "", ""
	c.setStatus(StatusDisconnected)

	if err := stderrors.Join(errs...); err != nil {
		return errors.WrapTransient(err, "Client", "Close", "cleanup")
	}
	return nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	if c.onHealthChange != nil {
		go c.onHealthChange(false)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	if c.metrics != nil {
		c.metrics.RecordNATSReconnect()
	}
	c.logger.Info("NATS reconnected")
	if c.onHealthChange != nil {
		go c.onHealthChange(true)
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.logger.Error("NATS error", "subject", subject, "error", err)
}

func isAlreadyExistsError(err error) bool {
	if stderrors.Is(err, jetstream.ErrBucketExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "already exists")
}
