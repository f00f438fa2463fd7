package graphql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/natsclient"
	"github.com/c360/fedgraph/pkg/retry"
)

// EntityClient resolves entities owned by a peer subgraph over its NATS
// entities endpoint.
type EntityClient struct {
	client   *natsclient.Client
	subjects NATSSubjectsConfig
	retry    errors.RetryConfig
}

// NewEntityClient creates a client for peers reachable through client.
func NewEntityClient(client *natsclient.Client, subjects NATSSubjectsConfig) *EntityClient {
	return &EntityClient{
		client:   client,
		subjects: subjects,
		retry:    errors.DefaultRetryConfig(),
	}
}

// WithRetry replaces the retry policy.
func (c *EntityClient) WithRetry(cfg errors.RetryConfig) *EntityClient {
	c.retry = cfg
	return c
}

// Entities sends representations to service and returns its answers in
// order. Transient failures are retried.
func (c *EntityClient) Entities(ctx context.Context, service string, representations []any) ([]map[string]any, error) {
	subject := c.subjects.EntitiesSubject(service)
	reqData, err := json.Marshal(EntityRequest{Representations: representations})
	if err != nil {
		return nil, errors.WrapInvalid(err, "EntityClient", "Entities", "marshal request")
	}

	var data []byte
	err = retry.Do(ctx, c.retry.ToRetryConfig(), func() error {
		var reqErr error
		data, reqErr = c.client.Request(ctx, subject, reqData)
		if reqErr != nil && !errors.IsTransient(reqErr) {
			return retry.NonRetryable(reqErr)
		}
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Entities []map[string]any `json:"entities"`
		Error    string           `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.WrapInvalid(err, "EntityClient", "Entities", "unmarshal response")
	}
	if resp.Error != "" {
		return nil, errors.WrapTransient(fmt.Errorf("%s", resp.Error), "EntityClient", "Entities",
			"peer "+service+" failed")
	}
	if len(resp.Entities) != len(representations) {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "EntityClient", "Entities",
			fmt.Sprintf("peer %s answered %d of %d representations", service, len(resp.Entities), len(representations)))
	}
	return resp.Entities, nil
}
