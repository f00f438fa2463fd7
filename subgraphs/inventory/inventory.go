// Package inventory is the subgraph that tracks inventory items. It owns
// only the keys of Market and MarketHashName and leaves every other field
// to the market subgraph.
package inventory

import (
	"context"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/store"
)

// Service is the subgraph name.
const Service = "inventory"

// Entity type names.
const (
	TypeMarket         = "Market"
	TypeMarketHashName = "MarketHashName"
)

// Featured is the item returned by the inventory root field.
const Featured = "AK-47 | Redline (Field-Tested)"

// Registry declares the types and root fields of the subgraph.
func Registry() (*registry.Registry, error) {
	b := registry.NewBuilder()
	_ = b.Register(registry.EntityType{
		Name:      TypeMarket,
		KeyFields: []string{"id"},
		Fields: []registry.FieldDescriptor{
			registry.Owned("id", registry.NonNull(registry.ID)),
			registry.Extern("name", registry.NonNull(registry.String)),
			registry.Extern("version", registry.NonNull(registry.Int)),
		},
	})
	_ = b.Register(registry.EntityType{
		Name:      TypeMarketHashName,
		KeyFields: []string{"value"},
		Fields: []registry.FieldDescriptor{
			registry.Owned("value", registry.NonNull(registry.String)).AsShareable(),
			registry.Extern("markets", registry.ListOf(registry.NonNull(TypeMarket))),
			registry.Extern("version", registry.NonNull(registry.Int)),
		},
	})
	_ = b.AddQuery(registry.QueryField{
		Name:        "inventory",
		Description: "The featured inventory item.",
		Type:        registry.NonNull(TypeMarketHashName),
	})
	return b.Build()
}

// Entries returns the items held in inventory.
func Entries() []store.Entry {
	return []store.Entry{
		{TypeName: TypeMarketHashName, Record: entity.Record{"value": Featured}},
	}
}

// New assembles the subgraph. Only keys are owned here, so every complete
// key resolves: Market always by key alone, MarketHashName from items when
// it holds the value and by key alone otherwise.
func New(reg *registry.Registry, items entity.Lookup) (*facade.Service, error) {
	ops, err := facade.NewSet(facade.Operation{
		Name: "inventory",
		Resolve: func(context.Context, map[string]any) (any, error) {
			return facade.Stub(reg, TypeMarketHashName, entity.Key{"value": Featured})
		},
	})
	if err != nil {
		return nil, err
	}
	svc := &facade.Service{
		Name:       Service,
		Registry:   reg,
		Lookup:     store.NewRouter(orKeyOnly(items)).Route(TypeMarket, entity.LookupFunc(keyOnly)),
		Operations: ops,
	}
	if err := svc.Verify(); err != nil {
		return nil, err
	}
	return svc, nil
}

func keyOnly(_ context.Context, _ string, key entity.Key) (entity.Record, bool, error) {
	return entity.Record(key.Clone()), true, nil
}

// orKeyOnly answers misses of items with the key itself. Lookup errors
// still surface.
func orKeyOnly(items entity.Lookup) entity.Lookup {
	return entity.LookupFunc(func(ctx context.Context, typeName string, key entity.Key) (entity.Record, bool, error) {
		rec, found, err := items.LookupByKey(ctx, typeName, key)
		if err != nil || found {
			return rec, found, err
		}
		return keyOnly(ctx, typeName, key)
	})
}
