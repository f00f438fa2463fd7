package graphql

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/natsclient"
	"github.com/c360/fedgraph/pkg/worker"
)

// EntityRequest is the payload of an entities request: federation _Any
// representations.
type EntityRequest struct {
	Representations []any `json:"representations"`
}

// EntityResponse answers an EntityRequest. Entities[i] answers
// Representations[i]; unresolved entries are null.
type EntityResponse struct {
	Entities []any  `json:"entities"`
	Error    string `json:"error,omitempty"`
}

// EntityHandler serves entity resolution on the NATS subject
// <prefix>.<service>.entities. Requests are processed by a worker pool.
type EntityHandler struct {
	client   *natsclient.Client
	resolver *entity.Resolver
	subject  string
	queue    string
	pool     *worker.Pool[*nats.Msg]
	logger   *slog.Logger
}

// NewEntityHandler creates the handler for service. registrar may be nil.
func NewEntityHandler(client *natsclient.Client, resolver *entity.Resolver, service string,
	subjects NATSSubjectsConfig, registrar metric.MetricsRegistrar, logger *slog.Logger,
) *EntityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &EntityHandler{
		client:   client,
		resolver: resolver,
		subject:  subjects.EntitiesSubject(service),
		queue:    subjects.QueueGroup(service),
		logger:   logger.With("component", "entity-handler", "subject", subjects.EntitiesSubject(service)),
	}
	var opts []worker.Option[*nats.Msg]
	if registrar != nil {
		opts = append(opts, worker.WithMetrics[*nats.Msg](registrar, "fedgraph_entity_requests"))
	}
	h.pool = worker.NewPool(subjects.Workers, subjects.QueueSize, h.process, opts...)
	return h
}

// Subject returns the subject the handler serves.
func (h *EntityHandler) Subject() string {
	return h.subject
}

// Start starts the workers and subscribes.
func (h *EntityHandler) Start(ctx context.Context) error {
	if err := h.pool.Start(ctx); err != nil {
		return err
	}
	err := h.client.QueueSubscribe(ctx, h.subject, h.queue, func(_ context.Context, msg *nats.Msg) {
		if err := h.pool.Submit(msg); err != nil {
			h.logger.Warn("Entity request rejected", "error", err)
			h.respond(msg, EntityResponse{Error: "entity endpoint overloaded"})
		}
	})
	if err != nil {
		_ = h.pool.Stop(time.Second)
		return err
	}
	h.logger.Info("Entity endpoint ready", "queue", h.queue)
	return nil
}

// Stop stops the workers. The subscription ends when the client closes.
func (h *EntityHandler) Stop(timeout time.Duration) error {
	return h.pool.Stop(timeout)
}

func (h *EntityHandler) process(ctx context.Context, msg *nats.Msg) error {
	resp, err := h.Handle(ctx, msg.Data)
	if err != nil {
		h.respond(msg, EntityResponse{Error: err.Error()})
		return err
	}
	h.respond(msg, resp)
	return nil
}

// Handle resolves one encoded EntityRequest.
func (h *EntityHandler) Handle(ctx context.Context, data []byte) (EntityResponse, error) {
	var req EntityRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return EntityResponse{}, errors.WrapInvalid(errors.ErrInvalidData, "EntityHandler", "Handle",
			"decode request: "+err.Error())
	}

	results := h.resolver.ResolveBatch(ctx, h.resolver.Decode(req.Representations))
	resp := EntityResponse{Entities: make([]any, len(results))}
	for i, res := range results {
		if res.Found() {
			resp.Entities[i] = entity.Object{TypeName: res.TypeName, Fields: res.Record}
		}
	}
	return resp, nil
}

func (h *EntityHandler) respond(msg *nats.Msg, resp EntityResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("Failed to encode entity response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		h.logger.Warn("Failed to send entity response", "error", err)
	}
}
