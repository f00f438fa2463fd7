// Package market is the subgraph that owns markets. It resolves Market
// entities from its catalog and computes MarketHashName entities for any
// value.
package market

import (
	"context"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/store"
)

// Service is the subgraph name.
const Service = "market"

// Entity type names.
const (
	TypeMarket         = "Market"
	TypeMarketHashName = "MarketHashName"
)

// Version values reported by the subgraph.
const (
	MarketVersion   = 1
	HashNameVersion = 7
)

// Registry declares the types and root fields of the subgraph.
func Registry() (*registry.Registry, error) {
	b := registry.NewBuilder()
	_ = b.Register(registry.EntityType{
		Name:        TypeMarket,
		Description: "A market an item can be traded on.",
		KeyFields:   []string{"id"},
		Fields: []registry.FieldDescriptor{
			registry.Owned("id", registry.NonNull(registry.ID)),
			registry.Owned("name", registry.NonNull(registry.String)),
			registry.Owned("version", registry.NonNull(registry.Int)),
		},
	})
	_ = b.Register(registry.EntityType{
		Name:        TypeMarketHashName,
		Description: "The canonical name of a tradable item.",
		KeyFields:   []string{"value"},
		Fields: []registry.FieldDescriptor{
			registry.Owned("value", registry.NonNull(registry.String)).AsShareable(),
			registry.Owned("markets", registry.ListOf(registry.NonNull(TypeMarket))).
				WithDescription("Markets listing the item."),
			registry.Owned("version", registry.NonNull(registry.Int)),
		},
	})
	_ = b.AddQuery(registry.QueryField{Name: "ping", Type: registry.NonNull(registry.String)})
	_ = b.AddQuery(registry.QueryField{
		Name:        "markets",
		Description: "All known markets.",
		Type:        registry.ListOf(registry.NonNull(TypeMarket)),
	})
	return b.Build()
}

// Entries returns the market catalog.
func Entries() []store.Entry {
	return []store.Entry{
		{TypeName: TypeMarket, Record: entity.Record{"id": "A", "name": "name a", "version": MarketVersion}},
		{TypeName: TypeMarket, Record: entity.Record{"id": "B", "name": "name b", "version": MarketVersion}},
		{TypeName: TypeMarket, Record: entity.Record{"id": "id", "name": "1", "version": MarketVersion}},
	}
}

// New assembles the subgraph. markets backs the Market type.
func New(reg *registry.Registry, markets entity.Lookup) (*facade.Service, error) {
	ops, err := facade.NewSet(
		facade.Operation{Name: "ping", Resolve: ping},
		facade.Operation{Name: "markets", Resolve: listMarkets},
	)
	if err != nil {
		return nil, err
	}
	svc := &facade.Service{
		Name:       Service,
		Registry:   reg,
		Lookup:     store.NewRouter(markets).Route(TypeMarketHashName, entity.LookupFunc(hashName)),
		Operations: ops,
	}
	if err := svc.Verify(); err != nil {
		return nil, err
	}
	return svc, nil
}

func ping(context.Context, map[string]any) (any, error) {
	return "pong", nil
}

func listMarkets(context.Context, map[string]any) (any, error) {
	return []entity.Ref{
		facade.Ref(TypeMarket, entity.Key{"id": "A"}),
		facade.Ref(TypeMarket, entity.Key{"id": "B"}),
	}, nil
}

// hashName resolves every value; each item trades on the same market.
func hashName(_ context.Context, _ string, key entity.Key) (entity.Record, bool, error) {
	return entity.Record{
		"value":   key["value"],
		"markets": []entity.Ref{facade.Ref(TypeMarket, entity.Key{"id": "id"})},
		"version": HashNameVersion,
	}, true, nil
}
