package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/schema"
	"github.com/c360/fedgraph/store"
)

func newService(t *testing.T) *facade.Service {
	t.Helper()
	reg, err := Registry()
	require.NoError(t, err)
	svc, err := New(reg, store.MustMemory(reg, Entries()...))
	require.NoError(t, err)
	return svc
}

func TestRegistry_Composes(t *testing.T) {
	reg, err := Registry()
	require.NoError(t, err)

	doc, err := schema.Compose(Service, reg)
	require.NoError(t, err)

	assert.Contains(t, doc.SDL, `name: String! @external`)
	assert.Contains(t, doc.SDL, `markets: [Market!]! @external`)
	assert.Contains(t, doc.SDL, `inventory: MarketHashName!`)

	svc := newService(t)
	assert.NoError(t, schema.VerifyKeys(doc, entity.NewResolver(reg, svc.Lookup)))
}

func TestInventory_ReturnsStub(t *testing.T) {
	svc := newService(t)

	op, ok := svc.Operations.Get("inventory")
	require.True(t, ok)
	v, err := op.Resolve(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, entity.Object{
		TypeName: TypeMarketHashName,
		Fields:   entity.Record{"value": Featured},
	}, v)
}

func TestResolve_OwnedFieldsOnly(t *testing.T) {
	svc := newService(t)
	resolver := entity.NewResolver(svc.Registry, svc.Lookup)
	ctx := context.Background()

	res := resolver.Resolve(ctx, TypeMarket, entity.Key{"id": "A"})
	require.True(t, res.Found())
	assert.Equal(t, entity.Record{"id": "A"}, res.Record)

	res = resolver.Resolve(ctx, TypeMarketHashName, entity.Key{"value": Featured})
	require.True(t, res.Found())
	assert.Equal(t, entity.Record{"value": Featured}, res.Record)

	res = resolver.Resolve(ctx, TypeMarketHashName, entity.Key{"value": "P250 | Sand Dune (Field-Tested)"})
	require.True(t, res.Found(), "any value resolves by key")
	assert.Equal(t, entity.Record{"value": "P250 | Sand Dune (Field-Tested)"}, res.Record)
}

func TestLookup_BackingErrorsSurface(t *testing.T) {
	reg, err := Registry()
	require.NoError(t, err)
	failing := entity.LookupFunc(func(context.Context, string, entity.Key) (entity.Record, bool, error) {
		return nil, false, errors.ErrStorageUnavailable
	})
	svc, err := New(reg, failing)
	require.NoError(t, err)

	res := entity.NewResolver(svc.Registry, svc.Lookup).
		Resolve(context.Background(), TypeMarketHashName, entity.Key{"value": Featured})
	assert.False(t, res.Found())
	assert.ErrorIs(t, res.Err, errors.ErrStorageUnavailable)
}
