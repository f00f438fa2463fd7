// Package subgraphs lists the subgraphs a binary can serve.
package subgraphs

import (
	"fmt"
	"slices"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/store"
	"github.com/c360/fedgraph/subgraphs/inventory"
	"github.com/c360/fedgraph/subgraphs/market"
)

// Definition describes how to build one subgraph.
type Definition struct {
	Name string
	// Registry declares the subgraph's types and root fields.
	Registry func() (*registry.Registry, error)
	// Entries is the catalog seeded into the backing store.
	Entries func() []store.Entry
	// New assembles the service over a backing lookup.
	New func(reg *registry.Registry, backing entity.Lookup) (*facade.Service, error)
}

var definitions = map[string]Definition{
	market.Service: {
		Name:     market.Service,
		Registry: market.Registry,
		Entries:  market.Entries,
		New:      market.New,
	},
	inventory.Service: {
		Name:     inventory.Service,
		Registry: inventory.Registry,
		Entries:  inventory.Entries,
		New:      inventory.New,
	},
}

// Get returns the definition of the named subgraph.
func Get(name string) (Definition, error) {
	def, ok := definitions[name]
	if !ok {
		return Definition{}, errors.WrapInvalid(errors.ErrInvalidConfig, "subgraphs", "Get",
			fmt.Sprintf("unknown subgraph %q (known: %v)", name, Names()))
	}
	return def, nil
}

// Names returns the known subgraph names, sorted.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build constructs the named subgraph backed by its static in-memory
// catalog.
func Build(name string) (*facade.Service, error) {
	def, err := Get(name)
	if err != nil {
		return nil, err
	}
	reg, err := def.Registry()
	if err != nil {
		return nil, err
	}
	backing, err := store.NewMemory(reg, def.Entries()...)
	if err != nil {
		return nil, err
	}
	return def.New(reg, backing)
}
