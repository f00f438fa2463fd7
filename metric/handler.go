package metric

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/fedgraph/errors"
)

// Handler serves everything registered with registry in the Prometheus or
// OpenMetrics text format. Scrapes of the handler itself are counted in
// promhttp_metric_handler_requests_total.
func Handler(registry *MetricsRegistry) http.Handler {
	reg := registry.PrometheusRegistry()
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          reg,
	}))
}

// Server exposes a registry on its own listener, apart from the GraphQL
// port. It can be restarted after Stop.
type Server struct {
	addr, path string
	registry   *MetricsRegistry

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
}

// NewServer returns a stopped server. Empty addr and path default to
// ":9090" and "/metrics".
func NewServer(addr, path string, registry *MetricsRegistry) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}
	return &Server{addr: addr, path: path, registry: registry}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.http != nil:
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "MetricsServer", "Start", "listen")
	case s.registry == nil:
		return errors.WrapFatal(fmt.Errorf("nil registry"), "MetricsServer", "Start", "listen")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "MetricsServer", "Start", "listen on "+s.addr)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, Handler(s.registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.http, s.ln = srv, ln
	go func() { _ = srv.Serve(ln) }()
	return nil
}

// Stop shuts the server down gracefully. Stopping a stopped server is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	err := s.http.Shutdown(ctx)
	s.http, s.ln = nil, nil
	if err != nil {
		return errors.WrapTransient(err, "MetricsServer", "Stop", "shutdown")
	}
	return nil
}

// Address returns the scrape URL, using the bound port once started.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	host := s.addr
	if s.ln != nil {
		host = s.ln.Addr().String()
	}
	return "http://" + host + s.path
}
