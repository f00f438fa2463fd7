// Package facade binds query operations to the root fields a registry
// declares and builds the values they return: populated objects, key-only
// stubs and references to entities owned elsewhere.
package facade

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// ResolveFunc computes the value of a root field. It may return an
// entity.Object, an entity.Ref, a scalar, nil, or a slice of those.
type ResolveFunc func(ctx context.Context, args map[string]any) (any, error)

// Operation is the implementation of one root query field.
type Operation struct {
	Name    string
	Resolve ResolveFunc
}

// Set holds the operations of a service.
type Set struct {
	ops   map[string]Operation
	order []string
}

// NewSet returns a set of ops. Names must be unique and every operation
// needs a resolver.
func NewSet(ops ...Operation) (*Set, error) {
	s := &Set{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if op.Name == "" || op.Resolve == nil {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Set", "NewSet",
				fmt.Sprintf("operation %q needs a name and a resolver", op.Name))
		}
		if _, dup := s.ops[op.Name]; dup {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Set", "NewSet",
				fmt.Sprintf("duplicate operation %q", op.Name))
		}
		s.ops[op.Name] = op
		s.order = append(s.order, op.Name)
	}
	return s, nil
}

// Get returns the operation bound to name.
func (s *Set) Get(name string) (Operation, bool) {
	op, ok := s.ops[name]
	return op, ok
}

// Names returns the operation names in the order given to NewSet.
func (s *Set) Names() []string {
	return slices.Clone(s.order)
}

// Verify checks that every root field declared in reg has an operation and
// every operation has a declared root field.
func (s *Set) Verify(reg *registry.Registry) error {
	declared := make(map[string]bool)
	var problems []string
	for _, q := range reg.Queries() {
		declared[q.Name] = true
		if _, ok := s.ops[q.Name]; !ok {
			problems = append(problems, fmt.Sprintf("root field %q has no operation", q.Name))
		}
	}
	for _, name := range s.order {
		if !declared[name] {
			problems = append(problems, fmt.Sprintf("operation %q is not a declared root field", name))
		}
	}
	if len(problems) > 0 {
		return errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Set", "Verify", "bind operations")
	}
	return nil
}

// Stub returns an object of typeName carrying only its key fields. The key
// must be complete and type-compatible.
func Stub(catalog registry.Catalog, typeName string, key entity.Key) (entity.Object, error) {
	t, err := catalog.Describe(typeName)
	if err != nil {
		return entity.Object{}, err
	}
	norm, err := entity.NormalizeKey(t, key)
	if err != nil {
		return entity.Object{}, err
	}
	return entity.Object{TypeName: typeName, Fields: entity.Record(norm)}, nil
}

// Ref returns a relationship value pointing at typeName by key.
func Ref(typeName string, key entity.Key) entity.Ref {
	return entity.Ref{TypeName: typeName, Key: key}
}

// Owned returns obj without values for external non-key fields.
func Owned(catalog registry.Catalog, obj entity.Object) (entity.Object, error) {
	t, err := catalog.Describe(obj.TypeName)
	if err != nil {
		return entity.Object{}, err
	}
	fields := make(entity.Record, len(obj.Fields))
	for name, v := range obj.Fields {
		if f, ok := t.Field(name); ok && f.Ownership == registry.External && !t.IsKeyField(name) {
			continue
		}
		fields[name] = v
	}
	return entity.Object{TypeName: obj.TypeName, Fields: fields}, nil
}

// Service is everything a subgraph contributes: its registry, the lookup
// backing its entities and the operations behind its root fields.
type Service struct {
	Name       string
	Registry   *registry.Registry
	Lookup     entity.Lookup
	Operations *Set
}

// Verify checks that the operations match the declared root fields.
func (s *Service) Verify() error {
	return s.Operations.Verify(s.Registry)
}
