package graphql

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/metric"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/schema"
	"github.com/c360/fedgraph/subgraphs"
	"github.com/c360/fedgraph/subgraphs/inventory"
	"github.com/c360/fedgraph/subgraphs/market"
)

func newTestExecutor(t *testing.T, name string, opts ...ExecutorOption) *Executor {
	t.Helper()
	svc, err := subgraphs.Build(name)
	require.NoError(t, err)
	return executorFor(t, svc, entity.NewResolver(svc.Registry, svc.Lookup), opts...)
}

func executorFor(t *testing.T, svc *facade.Service, resolver *entity.Resolver, opts ...ExecutorOption) *Executor {
	t.Helper()
	doc, err := schema.Compose(svc.Name, svc.Registry)
	require.NoError(t, err)
	e, err := NewExecutor(svc, doc, resolver, opts...)
	require.NoError(t, err)
	return e
}

func run(e *Executor, query string, vars map[string]any) *graphql.Response {
	return e.Execute(context.Background(), &graphql.RawParams{Query: query, Variables: vars})
}

func errorCodes(resp *graphql.Response) []string {
	codes := make([]string, 0, len(resp.Errors))
	for _, err := range resp.Errors {
		code, _ := err.Extensions["code"].(string)
		codes = append(codes, code)
	}
	return codes
}

func TestExecution_OwnedRootResults(t *testing.T) {
	e := newTestExecutor(t, inventory.Service)
	ex := &execution{Executor: e}

	leaky := entity.Object{
		TypeName: "MarketHashName",
		Fields:   entity.Record{"value": "v", "version": 7, "markets": []any{}},
	}
	want := entity.Object{TypeName: "MarketHashName", Fields: entity.Record{"value": "v"}}

	got, err := ex.owned(leaky)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ex.owned([]entity.Object{leaky})
	require.NoError(t, err)
	assert.Equal(t, []entity.Object{want}, got)

	got, err = ex.owned([]any{leaky, "scalar"})
	require.NoError(t, err)
	assert.Equal(t, []any{want, "scalar"}, got)

	got, err = ex.owned(facade.Ref("Market", entity.Key{"id": "A"}))
	require.NoError(t, err)
	assert.IsType(t, entity.Ref{}, got, "references pass through")

	_, err = ex.owned(entity.Object{TypeName: "Ghost"})
	var unknown *errors.UnknownTypeError
	assert.ErrorAs(t, err, &unknown)
}

func TestExecutor_RootOperations(t *testing.T) {
	e := newTestExecutor(t, market.Service)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"ping", `{ ping }`, `{"ping":"pong"}`},
		{
			"markets resolve through the catalog",
			`{ markets { id name version } }`,
			`{"markets":[{"id":"A","name":"name a","version":1},{"id":"B","name":"name b","version":1}]}`,
		},
		{"typename", `{ __typename ping }`, `{"__typename":"Query","ping":"pong"}`},
		{"alias", `{ a: ping b: ping }`, `{"a":"pong","b":"pong"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := run(e, tt.query, nil)
			require.Empty(t, resp.Errors)
			assert.Equal(t, tt.want, string(resp.Data))
		})
	}
}

func TestExecutor_Service(t *testing.T) {
	e := newTestExecutor(t, market.Service)

	resp := run(e, `{ _service { sdl } }`, nil)
	require.Empty(t, resp.Errors)

	var data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, e.Document().SDL, data.Service.SDL)
	assert.Contains(t, data.Service.SDL, `type Market @key(fields: "id")`)
}

func TestExecutor_Entities(t *testing.T) {
	e := newTestExecutor(t, market.Service)

	query := `query($r: [_Any!]!) {
		_entities(representations: $r) {
			__typename
			... on Market { id name version }
		}
	}`
	resp := run(e, query, map[string]any{"r": []any{
		map[string]any{"__typename": "Market", "id": "A"},
		map[string]any{"__typename": "Ghost", "id": "A"},
		map[string]any{"__typename": "Market", "id": "B", "name": "stale hint"},
	}})

	assert.Equal(t,
		`{"_entities":[{"__typename":"Market","id":"A","name":"name a","version":1},null,`+
			`{"__typename":"Market","id":"B","name":"name b","version":1}]}`,
		string(resp.Data))

	require.Len(t, resp.Errors, 1)
	err := resp.Errors[0]
	assert.Equal(t, ast.Path{ast.PathName("_entities"), ast.PathIndex(1)}, err.Path)
	assert.Equal(t, CodeEntityNotFound, err.Extensions["code"])
	assert.Equal(t, "unknown_type", err.Extensions["reason"])
	assert.Equal(t, "Ghost", err.Extensions["typename"])
}

func TestExecutor_EntitiesNotFound(t *testing.T) {
	e := newTestExecutor(t, market.Service)

	resp := run(e, `{
		_entities(representations: [{__typename: "Market", id: "Z"}, {id: "A"}]) {
			... on Market { id }
		}
	}`, nil)

	assert.Equal(t, `{"_entities":[null,null]}`, string(resp.Data))
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "not_found", resp.Errors[0].Extensions["reason"])
	assert.Equal(t, "malformed", resp.Errors[1].Extensions["reason"])
	assert.Equal(t, "representation", resp.Errors[1].Extensions["typename"])
}

func TestExecutor_EntityReferences(t *testing.T) {
	e := newTestExecutor(t, market.Service)

	resp := run(e, `{
		_entities(representations: [{__typename: "MarketHashName", value: "x"}]) {
			__typename
			... on MarketHashName { value version markets { id name } }
		}
	}`, nil)

	require.Empty(t, resp.Errors)
	assert.Equal(t,
		`{"_entities":[{"__typename":"MarketHashName","value":"x","version":7,"markets":[{"id":"id","name":"1"}]}]}`,
		string(resp.Data))
}

func TestExecutor_FragmentsAndDirectives(t *testing.T) {
	e := newTestExecutor(t, market.Service)

	query := `query Q($withName: Boolean!) {
		first: markets { ...M }
		ping @skip(if: true)
		again: ping @include(if: $withName)
	}
	fragment M on Market { id name @include(if: $withName) }`

	resp := run(e, query, map[string]any{"withName": false})
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"first":[{"id":"A"},{"id":"B"}]}`, string(resp.Data))

	resp = run(e, query, map[string]any{"withName": true})
	require.Empty(t, resp.Errors)
	assert.Equal(t,
		`{"first":[{"id":"A","name":"name a"},{"id":"B","name":"name b"}],"again":"pong"}`,
		string(resp.Data))
}

func TestExecutor_InventoryStub(t *testing.T) {
	e := newTestExecutor(t, inventory.Service)

	resp := run(e, `{ inventory { value } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"inventory":{"value":"AK-47 | Redline (Field-Tested)"}}`, string(resp.Data))
}

func TestExecutor_ExternalFields(t *testing.T) {
	e := newTestExecutor(t, inventory.Service)

	t.Run("non-null external field nulls the parent chain", func(t *testing.T) {
		resp := run(e, `{ inventory { value version } }`, nil)
		assert.Equal(t, "null", string(resp.Data))
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, CodeExternalField, resp.Errors[0].Extensions["code"])
		assert.Equal(t, ast.Path{ast.PathName("inventory"), ast.PathName("version")}, resp.Errors[0].Path)
	})

	t.Run("entity resolution stops at the nullable list item", func(t *testing.T) {
		resp := run(e, `{
			_entities(representations: [{__typename: "Market", id: "A"}]) {
				... on Market { id name }
			}
		}`, nil)
		assert.Equal(t, `{"_entities":[null]}`, string(resp.Data))
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, CodeExternalField, resp.Errors[0].Extensions["code"])
		assert.Equal(t,
			ast.Path{ast.PathName("_entities"), ast.PathIndex(0), ast.PathName("name")},
			resp.Errors[0].Path)
	})

	t.Run("key fields of a foreign type are answered", func(t *testing.T) {
		resp := run(e, `{
			_entities(representations: [{__typename: "Market", id: "anything"}]) {
				... on Market { id }
			}
		}`, nil)
		require.Empty(t, resp.Errors)
		assert.Equal(t, `{"_entities":[{"id":"anything"}]}`, string(resp.Data))
	})
}

func TestExecutor_RequestErrors(t *testing.T) {
	e := newTestExecutor(t, market.Service, WithMaxDepth(2))

	tests := []struct {
		name     string
		params   graphql.RawParams
		wantCode string
	}{
		{
			name:     "unknown field",
			params:   graphql.RawParams{Query: `{ nope }`},
			wantCode: CodeValidationFailed,
		},
		{
			name:     "syntax error",
			params:   graphql.RawParams{Query: `{ ping`},
			wantCode: CodeValidationFailed,
		},
		{
			name:     "missing variable",
			params:   graphql.RawParams{Query: `query($r: [_Any!]!) { _entities(representations: $r) { __typename } }`},
			wantCode: CodeBadUserInput,
		},
		{
			name:     "ambiguous operation",
			params:   graphql.RawParams{Query: `query A { ping } query B { ping }`},
			wantCode: CodeBadUserInput,
		},
		{
			name:     "unknown operation name",
			params:   graphql.RawParams{Query: `query A { ping }`, OperationName: "C"},
			wantCode: CodeBadUserInput,
		},
		{
			name:     "mutation",
			params:   graphql.RawParams{Query: `mutation { ping }`},
			wantCode: CodeValidationFailed,
		},
		{
			name: "depth limit",
			params: graphql.RawParams{Query: `{
				_entities(representations: []) { ... on MarketHashName { markets { id } } }
			}`},
			wantCode: CodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := tt.params
			resp := e.Execute(context.Background(), &params)
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, tt.wantCode, errorCodes(resp)[0])
			assert.Empty(t, resp.Data)
		})
	}

	t.Run("named operation is selected", func(t *testing.T) {
		resp := e.Execute(context.Background(), &graphql.RawParams{
			Query:         `query A { a: ping } query B { b: ping }`,
			OperationName: "B",
		})
		require.Empty(t, resp.Errors)
		assert.Equal(t, `{"b":"pong"}`, string(resp.Data))
	})
}

func TestExecutor_LookupTimeout(t *testing.T) {
	reg, err := market.Registry()
	require.NoError(t, err)
	blocked := entity.LookupFunc(func(ctx context.Context, _ string, _ entity.Key) (entity.Record, bool, error) {
		<-ctx.Done()
		return nil, false, ctx.Err()
	})
	svc, err := market.New(reg, blocked)
	require.NoError(t, err)

	resolver := entity.NewResolver(reg, svc.Lookup, entity.WithTimeout(20*time.Millisecond))
	e := executorFor(t, svc, resolver)

	resp := run(e, `{ markets { id } }`, nil)
	assert.Equal(t, "null", string(resp.Data))
	require.NotEmpty(t, resp.Errors)
	for _, code := range errorCodes(resp) {
		assert.Equal(t, CodeTimeout, code)
	}
	assert.Equal(t, "timeout", resp.Errors[0].Extensions["reason"])
}

func TestExecutor_OperationErrors(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.Register(registry.EntityType{
		Name:      "Item",
		KeyFields: []string{"id"},
		Fields:    []registry.FieldDescriptor{registry.Owned("id", registry.NonNull(registry.ID))},
	}))
	require.NoError(t, b.AddQuery(registry.QueryField{Name: "busy", Type: registry.Nullable(registry.String)}))
	require.NoError(t, b.AddQuery(registry.QueryField{Name: "broken", Type: registry.Nullable(registry.String)}))
	require.NoError(t, b.AddQuery(registry.QueryField{
		Name: "echo",
		Type: registry.Nullable(registry.String),
		Args: []registry.Argument{{Name: "text", Type: registry.NonNull(registry.String)}},
	}))
	reg, err := b.Build()
	require.NoError(t, err)

	ops, err := facade.NewSet(
		facade.Operation{Name: "busy", Resolve: func(context.Context, map[string]any) (any, error) {
			return nil, errors.WrapTransient(errors.ErrStorageUnavailable, "test", "busy", "read")
		}},
		facade.Operation{Name: "broken", Resolve: func(context.Context, map[string]any) (any, error) {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "test", "broken", "secret detail")
		}},
		facade.Operation{Name: "echo", Resolve: func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		}},
	)
	require.NoError(t, err)
	svc := &facade.Service{Name: "items", Registry: reg, Lookup: entity.LookupFunc(
		func(context.Context, string, entity.Key) (entity.Record, bool, error) { return nil, false, nil }),
		Operations: ops}
	e := executorFor(t, svc, entity.NewResolver(reg, svc.Lookup))

	resp := run(e, `{ busy broken echo(text: "hi") }`, nil)
	assert.Equal(t, `{"busy":null,"broken":null,"echo":"hi"}`, string(resp.Data))
	require.Len(t, resp.Errors, 2)

	assert.Equal(t, CodeServiceUnavailable, resp.Errors[0].Extensions["code"])
	assert.Equal(t, true, resp.Errors[0].Extensions["retryable"])
	assert.Equal(t, CodeInternal, resp.Errors[1].Extensions["code"])
	assert.NotContains(t, resp.Errors[1].Message, "secret")
}

func TestExecutor_Metrics(t *testing.T) {
	m := metric.NewMetrics()
	e := newTestExecutor(t, market.Service, WithExecutorMetrics(m))

	run(e, `{ _entities(representations: [{__typename: "Ghost"}]) { __typename } }`, nil)
	e.Execute(context.Background(), &graphql.RawParams{Query: `query Named { ping }`, OperationName: "Named"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryErrors.WithLabelValues(market.Service, CodeEntityNotFound)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDuration))
}

func TestNewExecutor_Errors(t *testing.T) {
	svc, err := subgraphs.Build(market.Service)
	require.NoError(t, err)
	doc, err := schema.Compose(svc.Name, svc.Registry)
	require.NoError(t, err)

	t.Run("missing arguments", func(t *testing.T) {
		_, err := NewExecutor(nil, doc, entity.NewResolver(svc.Registry, svc.Lookup))
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("document of another service", func(t *testing.T) {
		other, err := schema.Compose("elsewhere", svc.Registry)
		require.NoError(t, err)
		_, err = NewExecutor(svc, other, entity.NewResolver(svc.Registry, svc.Lookup))
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("resolver does not accept the advertised keys", func(t *testing.T) {
		b := registry.NewBuilder()
		require.NoError(t, b.Register(registry.EntityType{
			Name:      market.TypeMarket,
			KeyFields: []string{"id"},
			Fields:    []registry.FieldDescriptor{registry.Owned("id", registry.NonNull(registry.ID))},
		}))
		narrow, err := b.Build()
		require.NoError(t, err)
		_, err = NewExecutor(svc, doc, entity.NewResolver(narrow, svc.Lookup))
		assert.ErrorIs(t, err, errors.ErrKeyMismatch)
	})

	t.Run("operations do not match root fields", func(t *testing.T) {
		ops, err := facade.NewSet(facade.Operation{Name: "ping",
			Resolve: func(context.Context, map[string]any) (any, error) { return "pong", nil }})
		require.NoError(t, err)
		partial := *svc
		partial.Operations = ops
		_, err = NewExecutor(&partial, doc, entity.NewResolver(svc.Registry, svc.Lookup))
		assert.True(t, errors.IsFatal(err))
	})
}
