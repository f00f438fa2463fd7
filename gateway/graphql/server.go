package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/health"
	"github.com/c360/fedgraph/metric"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// Server manages the HTTP server of a subgraph: the GraphQL endpoint,
// health and metrics.
type Server struct {
	config     Config
	executor   *Executor
	metrics    *metric.MetricsRegistry
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	mux        *http.ServeMux
	health     *health.Monitor

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once // Ensures stopChan is closed exactly once
}

// NewServer creates a new GraphQL HTTP server. metrics may be nil, in which
// case /metrics is not served.
func NewServer(config Config, executor *Executor, metrics *metric.MetricsRegistry, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}

	if executor == nil {
		return nil, errors.WrapFatal(fmt.Errorf("executor is nil"), "Server", "NewServer",
			"executor is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   config,
		executor: executor,
		metrics:  metrics,
		logger:   logger.With("component", "graphql-server"),
		mux:      http.NewServeMux(),
		health:   health.NewMonitor(2 * time.Second),
		stopChan: make(chan struct{}),
	}
	s.health.Register("http", func(context.Context) health.Status {
		if s.IsRunning() {
			return health.NewHealthy("", "")
		}
		return health.NewUnhealthy("", "server not running")
	})
	s.setup()
	return s, nil
}

// Health returns the monitor behind /health. Callers may register probes
// for their own dependencies.
func (s *Server) Health() *health.Monitor {
	return s.health
}

func (s *Server) setup() {
	s.mux.HandleFunc(s.config.Path, s.handleGraphQL)
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", metric.Handler(s.metrics))
	}

	var handler http.Handler = s.mux
	if s.config.EnableCORS {
		handler = withCORS(s.config.CORSOrigins, handler)
	}

	s.httpServer = &http.Server{
		Addr:         s.config.BindAddress,
		Handler:      handler,
		ReadTimeout:  s.config.Timeout(),
		WriteTimeout: s.config.Timeout() + time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the bind address and serves until ctx is cancelled or
// Stop is called. The ready channel is closed once the listener is bound.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "server already running")
	}
	listener, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "listen on "+s.config.BindAddress)
	}
	s.listener = listener
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("Server starting", "address", listener.Addr().String(), "path", s.config.Path)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			errChan <- err
		}
	}()

	if ready != nil {
		close(ready)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Server context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		return nil

	case err, ok := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil // Already stopped
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Server stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server gracefully", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := s.logger.With("request_id", requestID)

	params, status, err := readParams(r)
	if err != nil {
		logger.Debug("Rejected GraphQL request", "status", status, "error", err)
		writeJSON(w, status, &graphql.Response{Errors: gqlerror.List{
			newError(nil, CodeBadUserInput, "%s", err.Error()),
		}})
		return
	}

	resp := s.executor.Execute(r.Context(), params)
	logger.Debug("GraphQL request served", "operation", params.OperationName, "errors", len(resp.Errors))
	writeJSON(w, http.StatusOK, resp)
}

// readParams decodes a GET or POST GraphQL request.
func readParams(r *http.Request) (*graphql.RawParams, int, error) {
	params := &graphql.RawParams{}
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		params.Query = q.Get("query")
		params.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &params.Variables); err != nil {
				return nil, http.StatusBadRequest, fmt.Errorf("variables must be a JSON object")
			}
		}
	case http.MethodPost:
		if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
			return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", ct)
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(params); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("request body must be a JSON GraphQL request")
		}
	default:
		return nil, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method)
	}
	if params.Query == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("query is required")
	}
	return params, http.StatusOK, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth runs the health probes. Degraded still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, health.NewUnhealthy("subgraph", "server not running"))
		return
	}
	status := s.health.Check(r.Context(), "subgraph")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// withCORS answers preflight requests and marks responses to origins in
// allowed as readable cross-origin. "*" allows any origin.
func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		h.Add("Vary", "Origin")

		if origin != "" && (slices.Contains(allowed, "*") || slices.Contains(allowed, origin)) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			h.Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
