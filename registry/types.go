package registry

import (
	"slices"

	"github.com/vektah/gqlparser/v2/ast"
)

// Built-in scalar names usable as field and key types.
const (
	ID      = "ID"
	String  = "String"
	Int     = "Int"
	Float   = "Float"
	Boolean = "Boolean"
)

// IsScalar reports whether name is one of the built-in scalars.
func IsScalar(name string) bool {
	switch name {
	case ID, String, Int, Float, Boolean:
		return true
	}
	return false
}

// Ownership tags a field as resolved locally or by another service.
type Ownership int

const (
	// Local fields are resolved by this service.
	Local Ownership = iota
	// External fields are declared here but resolved by the owning service.
	External
)

func (o Ownership) String() string {
	switch o {
	case Local:
		return "local"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// FieldDescriptor describes one field of an entity type.
type FieldDescriptor struct {
	Name        string
	Type        *ast.Type
	Ownership   Ownership
	Shareable   bool
	Description string
}

// Owned declares a locally resolved field.
func Owned(name string, typ *ast.Type) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: typ, Ownership: Local}
}

// Extern declares a field resolved by another service.
func Extern(name string, typ *ast.Type) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: typ, Ownership: External}
}

// AsShareable marks the field as resolvable by several services.
func (f FieldDescriptor) AsShareable() FieldDescriptor {
	f.Shareable = true
	return f
}

// WithDescription sets the field description emitted in SDL.
func (f FieldDescriptor) WithDescription(desc string) FieldDescriptor {
	f.Description = desc
	return f
}

// EntityType is a named type in the graph together with its key and the
// ownership of each of its fields. Field order is declaration order.
type EntityType struct {
	Name        string
	Description string
	KeyFields   []string
	Fields      []FieldDescriptor
}

// Field returns the descriptor for name.
func (t EntityType) Field(name string) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// OwnedFields returns the locally resolved field names in declaration order.
func (t EntityType) OwnedFields() []string {
	return t.fieldsWith(Local)
}

// ExternalFields returns the externally resolved field names in declaration order.
func (t EntityType) ExternalFields() []string {
	return t.fieldsWith(External)
}

// Owns reports whether name is a locally resolved field.
func (t EntityType) Owns(name string) bool {
	f, ok := t.Field(name)
	return ok && f.Ownership == Local
}

// IsKeyField reports whether name is one of the key fields.
func (t EntityType) IsKeyField(name string) bool {
	return slices.Contains(t.KeyFields, name)
}

func (t EntityType) fieldsWith(o Ownership) []string {
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Ownership == o {
			names = append(names, f.Name)
		}
	}
	return names
}

func (t EntityType) clone() EntityType {
	out := t
	out.KeyFields = slices.Clone(t.KeyFields)
	out.Fields = make([]FieldDescriptor, len(t.Fields))
	for i, f := range t.Fields {
		f.Type = copyType(f.Type)
		out.Fields[i] = f
	}
	return out
}

// Argument is an argument of a root query field.
type Argument struct {
	Name        string
	Type        *ast.Type
	Description string
}

// QueryField declares a root query field. The registry only keeps the
// declaration; the facade binds the resolver.
type QueryField struct {
	Name        string
	Description string
	Args        []Argument
	Type        *ast.Type
}

func (q QueryField) clone() QueryField {
	out := q
	out.Type = copyType(q.Type)
	out.Args = make([]Argument, len(q.Args))
	for i, a := range q.Args {
		a.Type = copyType(a.Type)
		out.Args[i] = a
	}
	return out
}

// NonNull returns the non-null named type name!.
func NonNull(name string) *ast.Type {
	return ast.NonNullNamedType(name, nil)
}

// Nullable returns the nullable named type name.
func Nullable(name string) *ast.Type {
	return ast.NamedType(name, nil)
}

// ListOf returns the non-null list type [elem]!.
func ListOf(elem *ast.Type) *ast.Type {
	return ast.NonNullListType(elem, nil)
}

// BaseName unwraps lists and returns the named type at the bottom.
func BaseName(t *ast.Type) string {
	for t != nil && t.NamedType == "" {
		t = t.Elem
	}
	if t == nil {
		return ""
	}
	return t.NamedType
}

func copyType(t *ast.Type) *ast.Type {
	if t == nil {
		return nil
	}
	return &ast.Type{
		NamedType: t.NamedType,
		Elem:      copyType(t.Elem),
		NonNull:   t.NonNull,
	}
}
