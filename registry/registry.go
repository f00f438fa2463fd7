package registry

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/c360/fedgraph/errors"
)

var nameRE = regexp.MustCompile(`^[A-Za-z][_0-9A-Za-z]*$`)

// Catalog is the read side of a registry. Snapshot returns the immutable
// registry that backs the catalog at the time of the call; work that must
// see one consistent set of types holds on to it.
type Catalog interface {
	Describe(name string) (EntityType, error)
	Types() []EntityType
	Snapshot() *Registry
}

// Builder collects entity types and root query fields at start-up.
// It is not safe for concurrent use.
type Builder struct {
	types   []EntityType
	index   map[string]int
	queries []QueryField
	err     error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Register adds an entity type. It returns a DuplicateTypeError if the name
// is already registered and an InvalidTypeError if the declaration breaks an
// invariant. The first error is also remembered and returned by Build.
func (b *Builder) Register(t EntityType) error {
	if err := b.register(t); err != nil {
		if b.err == nil {
			b.err = err
		}
		return err
	}
	return nil
}

func (b *Builder) register(t EntityType) error {
	if _, exists := b.index[t.Name]; exists {
		return &errors.DuplicateTypeError{TypeName: t.Name}
	}
	if err := validateType(t); err != nil {
		return err
	}
	b.index[t.Name] = len(b.types)
	b.types = append(b.types, t.clone())
	return nil
}

// AddQuery declares a root query field.
func (b *Builder) AddQuery(q QueryField) error {
	if err := b.addQuery(q); err != nil {
		if b.err == nil {
			b.err = err
		}
		return err
	}
	return nil
}

func (b *Builder) addQuery(q QueryField) error {
	if !nameRE.MatchString(q.Name) {
		return errors.WrapInvalid(fmt.Errorf("invalid query field name %q", q.Name),
			"Builder", "AddQuery", "name validation")
	}
	if q.Type == nil {
		return errors.WrapInvalid(fmt.Errorf("query field %q has no type", q.Name),
			"Builder", "AddQuery", "type validation")
	}
	for _, existing := range b.queries {
		if existing.Name == q.Name {
			return errors.WrapInvalid(fmt.Errorf("query field %q is already declared", q.Name),
				"Builder", "AddQuery", "duplicate check")
		}
	}
	seen := make(map[string]bool, len(q.Args))
	for _, a := range q.Args {
		if !nameRE.MatchString(a.Name) || a.Type == nil || seen[a.Name] {
			return errors.WrapInvalid(fmt.Errorf("query field %q: invalid argument %q", q.Name, a.Name),
				"Builder", "AddQuery", "argument validation")
		}
		seen[a.Name] = true
	}
	b.queries = append(b.queries, q.clone())
	return nil
}

// Build validates cross-type references and returns the immutable registry.
func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}

	known := func(name string) bool {
		_, ok := b.index[name]
		return ok || IsScalar(name)
	}
	for _, t := range b.types {
		for _, f := range t.Fields {
			if base := BaseName(f.Type); !known(base) {
				return nil, &errors.InvalidTypeError{TypeName: t.Name,
					Reason: fmt.Sprintf("field %s references unknown type %s", f.Name, base)}
			}
		}
	}
	for _, q := range b.queries {
		if base := BaseName(q.Type); !known(base) {
			return nil, errors.WrapInvalid(fmt.Errorf("query field %s returns unknown type %s", q.Name, base),
				"Builder", "Build", "query validation")
		}
		for _, a := range q.Args {
			if !IsScalar(BaseName(a.Type)) {
				return nil, errors.WrapInvalid(fmt.Errorf("query field %s: argument %s must be a scalar", q.Name, a.Name),
					"Builder", "Build", "query validation")
			}
		}
	}

	index := make(map[string]int, len(b.index))
	for k, v := range b.index {
		index[k] = v
	}
	types := make([]EntityType, len(b.types))
	for i, t := range b.types {
		types[i] = t.clone()
	}
	queries := make([]QueryField, len(b.queries))
	for i, q := range b.queries {
		queries[i] = q.clone()
	}
	return &Registry{types: types, index: index, queries: queries}, nil
}

func validateType(t EntityType) error {
	invalid := func(format string, args ...any) error {
		return &errors.InvalidTypeError{TypeName: t.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if !nameRE.MatchString(t.Name) {
		return invalid("type name must match %s", nameRE.String())
	}
	if IsScalar(t.Name) || t.Name == "Query" {
		return invalid("type name is reserved")
	}
	if len(t.Fields) == 0 {
		return invalid("at least one field is required")
	}

	fields := make(map[string]FieldDescriptor, len(t.Fields))
	for _, f := range t.Fields {
		if !nameRE.MatchString(f.Name) {
			return invalid("invalid field name %q", f.Name)
		}
		if f.Type == nil || BaseName(f.Type) == "" {
			return invalid("field %s has no type", f.Name)
		}
		if f.Ownership != Local && f.Ownership != External {
			return invalid("field %s has unknown ownership %d", f.Name, f.Ownership)
		}
		// A second declaration of the same name would let a field be both
		// owned and external.
		if _, dup := fields[f.Name]; dup {
			return invalid("field %s is declared more than once", f.Name)
		}
		fields[f.Name] = f
	}

	if len(t.KeyFields) == 0 {
		return invalid("at least one key field is required")
	}
	for i, k := range t.KeyFields {
		f, ok := fields[k]
		if !ok {
			return invalid("key field %s is not declared", k)
		}
		if slices.Contains(t.KeyFields[:i], k) {
			return invalid("key field %s is listed twice", k)
		}
		if f.Type.Elem != nil || !IsScalar(f.Type.NamedType) {
			return invalid("key field %s must be a scalar", k)
		}
	}
	return nil
}

// Registry is an immutable set of entity types and root query fields.
// All methods are safe for concurrent use.
type Registry struct {
	types   []EntityType
	index   map[string]int
	queries []QueryField
}

// Describe returns a copy of the named entity type.
func (r *Registry) Describe(name string) (EntityType, error) {
	i, ok := r.index[name]
	if !ok {
		return EntityType{}, &errors.UnknownTypeError{TypeName: name}
	}
	return r.types[i].clone(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// OwnedFieldsOf returns the locally resolved fields of name.
func (r *Registry) OwnedFieldsOf(name string) ([]string, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, &errors.UnknownTypeError{TypeName: name}
	}
	return r.types[i].OwnedFields(), nil
}

// ExternalFieldsOf returns the externally resolved fields of name.
func (r *Registry) ExternalFieldsOf(name string) ([]string, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, &errors.UnknownTypeError{TypeName: name}
	}
	return r.types[i].ExternalFields(), nil
}

// Types returns copies of all entity types in registration order.
func (r *Registry) Types() []EntityType {
	out := make([]EntityType, len(r.types))
	for i, t := range r.types {
		out[i] = t.clone()
	}
	return out
}

// Queries returns copies of the root query fields in declaration order.
func (r *Registry) Queries() []QueryField {
	out := make([]QueryField, len(r.queries))
	for i, q := range r.queries {
		out[i] = q.clone()
	}
	return out
}

// Snapshot returns r. A Registry never changes after Build.
func (r *Registry) Snapshot() *Registry {
	return r
}

var _ Catalog = (*Registry)(nil)
