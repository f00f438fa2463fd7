package graphql

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/schema"
)

// Executor runs GraphQL queries against one subgraph: its façade root
// fields plus the federation fields _service and _entities.
type Executor struct {
	service  string
	doc      *schema.Document
	schema   *ast.Schema
	catalog  registry.Catalog
	resolver *entity.Resolver
	ops      *facade.Set
	logger   *slog.Logger
	metrics  *metric.Metrics
	maxDepth int
	timeout  time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExecutorMetrics records query durations and errors.
func WithExecutorMetrics(m *metric.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithMaxDepth limits selection nesting.
func WithMaxDepth(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithRequestTimeout bounds each Execute call.
func WithRequestTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor binds svc to its composed document. It fails if the
// operations do not match the declared root fields or if the document's
// keys differ from what resolver accepts.
func NewExecutor(svc *facade.Service, doc *schema.Document, resolver *entity.Resolver, opts ...ExecutorOption) (*Executor, error) {
	if svc == nil || doc == nil || resolver == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Executor", "NewExecutor",
			"service, document and resolver are required")
	}
	if doc.Service != svc.Name {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Executor", "NewExecutor",
			"document "+doc.Service+" does not belong to service "+svc.Name)
	}
	if err := svc.Verify(); err != nil {
		return nil, err
	}
	if err := schema.VerifyKeys(doc, resolver); err != nil {
		return nil, err
	}

	e := &Executor{
		service:  svc.Name,
		doc:      doc,
		schema:   doc.Schema(),
		catalog:  svc.Registry,
		resolver: resolver,
		ops:      svc.Operations,
		logger:   slog.Default(),
		maxDepth: 10,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "graphql-executor", "service", svc.Name)
	return e, nil
}

// Document returns the composed document the executor serves.
func (e *Executor) Document() *schema.Document {
	return e.doc
}

// Execute runs one request. Errors are reported in the response; partial
// data is valid.
func (e *Executor) Execute(ctx context.Context, params *graphql.RawParams) *graphql.Response {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp := e.execute(ctx, params)

	if e.metrics != nil {
		e.metrics.RecordQuery(e.service, operationLabel(params.OperationName), time.Since(start))
		for _, err := range resp.Errors {
			code, _ := err.Extensions["code"].(string)
			e.metrics.RecordQueryError(e.service, code)
		}
	}
	if len(resp.Errors) > 0 {
		e.logger.Debug("Query completed with errors",
			"operation", params.OperationName, "errors", len(resp.Errors))
	}
	return resp
}

func operationLabel(name string) string {
	if name == "" {
		return "anonymous"
	}
	return name
}

func (e *Executor) execute(ctx context.Context, params *graphql.RawParams) *graphql.Response {
	query, errs := gqlparser.LoadQuery(e.schema, params.Query)
	if len(errs) > 0 {
		return &graphql.Response{Errors: withCode(errs, CodeValidationFailed)}
	}

	op := query.Operations.ForName(params.OperationName)
	if op == nil {
		if params.OperationName == "" {
			return errorResponse(newError(nil, CodeBadUserInput,
				"an operation name is required when the document has several operations"))
		}
		return errorResponse(newError(nil, CodeBadUserInput, "operation %q not found", params.OperationName))
	}
	if op.Operation != ast.Query {
		return errorResponse(newError(nil, CodeOperationNotSupported,
			"%s operations are not supported", op.Operation))
	}

	vars, err := validator.VariableValues(e.schema, op, params.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if !stderrors.As(err, &gqlErr) {
			gqlErr = gqlerror.Wrap(err)
		}
		return &graphql.Response{Errors: withCode(gqlerror.List{gqlErr}, CodeBadUserInput)}
	}

	if depth := selectionDepth(op.SelectionSet, query.Fragments, map[string]bool{}); depth > e.maxDepth {
		return errorResponse(newError(nil, CodeValidationFailed,
			"query depth %d exceeds the limit of %d", depth, e.maxDepth))
	}

	ex := &execution{Executor: e, vars: vars, fragments: query.Fragments}
	data, _ := ex.executeObject(ctx, e.schema.Query, op.SelectionSet, rootSource{}, nil)

	raw, err := json.Marshal(data)
	if err != nil {
		e.logger.Error("Failed to encode response", "error", err)
		return errorResponse(newError(nil, CodeInternal, "Internal server error"))
	}
	return &graphql.Response{Data: raw, Errors: ex.errors}
}

func errorResponse(err *gqlerror.Error) *graphql.Response {
	return &graphql.Response{Errors: gqlerror.List{err}}
}

// selectionDepth returns the deepest field nesting in set.
func selectionDepth(set ast.SelectionSet, fragments ast.FragmentDefinitionList, visiting map[string]bool) int {
	depth := 0
	for _, sel := range set {
		d := 0
		switch s := sel.(type) {
		case *ast.Field:
			d = 1 + selectionDepth(s.SelectionSet, fragments, visiting)
		case *ast.InlineFragment:
			d = selectionDepth(s.SelectionSet, fragments, visiting)
		case *ast.FragmentSpread:
			if visiting[s.Name] {
				continue
			}
			if frag := fragments.ForName(s.Name); frag != nil {
				visiting[s.Name] = true
				d = selectionDepth(frag.SelectionSet, fragments, visiting)
				delete(visiting, s.Name)
			}
		}
		depth = max(depth, d)
	}
	return depth
}
