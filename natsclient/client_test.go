package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/pkg/retry"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestNewClient_InvalidOption(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"zero timeout", WithTimeout(0)},
		{"reconnects below -1", WithReconnect(-2, time.Second)},
		{"negative reconnect wait", WithReconnect(3, -time.Second)},
		{"zero circuit threshold", WithCircuitBreaker(0, time.Minute)},
		{"sub-second backoff", WithCircuitBreaker(3, time.Millisecond)},
		{"token and user", WithAuth(Auth{User: "u", Password: "p", Token: "t"})},
		{"password without user", WithAuth(Auth{Password: "p"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestNewClient_Options(t *testing.T) {
	var changes []bool
	client, err := NewClient("nats://localhost:4222",
		WithReconnect(0, 0),
		WithAuth(Auth{User: "svc", Password: "pw"}),
		WithName("fedgraph-subgraph-market"),
		WithHealthChange(func(healthy bool) { changes = append(changes, healthy) }),
	)
	require.NoError(t, err)

	assert.Equal(t, 0, client.maxReconnects)
	assert.Equal(t, 2*time.Second, client.reconnectWait, "zero wait keeps the default")
	assert.Equal(t, "svc", client.username)
	assert.Equal(t, "fedgraph-subgraph-market", client.clientName)
	require.NotNil(t, client.onHealthChange)
	client.onHealthChange(false)
	assert.Equal(t, []bool{false}, changes)

	_, err = NewClient("nats://localhost:4222", WithAuth(Auth{}))
	assert.NoError(t, err, "zero auth is a no-op")
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client, err := NewClient("nats://invalid:4222", WithCircuitBreaker(3, time.Minute))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(3), client.Failures())
	assert.Equal(t, 2*time.Second, client.Backoff())

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_BackoffCapped(t *testing.T) {
	client, err := NewClient("nats://invalid:4222",
		WithCircuitBreaker(1, 2*time.Second))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())
}

func TestClient_OperationsRequireConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Request(ctx, "fedgraph.market.entities", []byte(`{}`))
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))

	err = client.QueueSubscribe(ctx, "x", "q", func(context.Context, *nats.Msg) {})
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	_, err = client.JetStream()
	assert.Error(t, err)

	_, err = client.RTT()
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	assert.NoError(t, client.Close(ctx))
	assert.NoError(t, client.Close(ctx), "Close is idempotent")
}

func TestMapRequestError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{nats.ErrNoResponders, errors.ErrNoResponders},
		{nats.ErrTimeout, errors.ErrConnectionTimeout},
		{context.DeadlineExceeded, errors.ErrConnectionTimeout},
		{nats.ErrConnectionClosed, errors.ErrConnectionLost},
	}
	for _, tt := range tests {
		err := mapRequestError(tt.in, "subj")
		assert.ErrorIs(t, err, tt.want)
		assert.True(t, errors.IsTransient(err))
	}
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	m := metric.NewMetrics()
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(50*time.Millisecond),
		WithCircuitBreaker(100, time.Minute),
		WithMetrics(m))
	require.NoError(t, err)

	cfg := retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err = client.ConnectWithRetry(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, int32(2), client.Failures())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NATSConnected))
}
