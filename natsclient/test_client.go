package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testServerImage = "nats:2.11.7-alpine"

// TestClient is a connected Client backed by a throwaway JetStream-enabled
// NATS server running in a container.
type TestClient struct {
	Client *Client
	URL    string
}

// NewTestClient starts the server and connects a Client to it. opts are
// applied after the test defaults. The client is closed and the container
// removed when t finishes.
func NewTestClient(t testing.TB, opts ...ClientOption) *TestClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	container, url, err := runTestServer(ctx)
	if err != nil {
		t.Fatalf("NATS test server: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	defaults := []ClientOption{
		WithTimeout(5 * time.Second),
		WithReconnect(0, 0),
		WithName("fedgraph-test"),
	}
	client, err := NewClient(url, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("NATS test client: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return &TestClient{Client: client, URL: url}
}

// runTestServer returns the running container and its client URL. The
// container is terminated if it cannot be addressed.
func runTestServer(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testServerImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          []string{"--js", "--http_port", "8222"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp"),
			).WithDeadline(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve endpoint: %w", err)
	}
	return container, endpoint, nil
}
