package entity

import (
	"fmt"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// TypenameField is the discriminator of a federation _Any value.
const TypenameField = "__typename"

// DecodeRepresentations converts federation _Any values into
// representations. Key fields of a known type go into Key, other fields into
// Hints. For an unknown type every field goes into Key. A malformed entry
// still yields a representation at its index; it resolves NotFound.
func DecodeRepresentations(catalog registry.Catalog, raw []any) []Representation {
	out := make([]Representation, len(raw))
	for i, item := range raw {
		out[i] = decodeOne(catalog, item)
	}
	return out
}

func decodeOne(catalog registry.Catalog, item any) Representation {
	obj, ok := item.(map[string]any)
	if !ok {
		return Representation{err: errors.WrapInvalid(
			fmt.Errorf("%w: representation must be an object, got %T", errors.ErrInvalidData, item),
			"entity", "DecodeRepresentations", "decode representation")}
	}
	typeName, ok := obj[TypenameField].(string)
	if !ok || typeName == "" {
		return Representation{err: errors.WrapInvalid(
			fmt.Errorf("%w: representation has no %s", errors.ErrInvalidData, TypenameField),
			"entity", "DecodeRepresentations", "decode representation")}
	}

	rep := Representation{TypeName: typeName, Key: make(Key, len(obj))}
	t, err := catalog.Describe(typeName)
	for name, v := range obj {
		if name == TypenameField {
			continue
		}
		if err == nil && !t.IsKeyField(name) {
			if rep.Hints == nil {
				rep.Hints = make(map[string]any)
			}
			rep.Hints[name] = v
			continue
		}
		rep.Key[name] = v
	}
	return rep
}
