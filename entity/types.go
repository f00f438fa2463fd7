// Package entity resolves federation entity representations against a
// backing lookup.
//
// A Representation names a type and a key. ResolveBatch turns a batch of
// representations into a batch of Resolved values of the same length and
// order. Any per-item failure (unknown type, bad key, lookup timeout, lookup
// error, miss) yields NotFound at that index only; the batch itself never
// fails.
package entity

import (
	"context"
	"encoding/json"
	"maps"
)

// Key maps key field names to values.
type Key map[string]any

// Record maps field names to values.
type Record map[string]any

// Representation identifies one entity to resolve. Hints carries non-key
// fields a caller sent along with the key; they never affect resolution.
type Representation struct {
	TypeName string
	Key      Key
	Hints    map[string]any

	err error
}

// Resolved is the outcome of resolving one representation. A nil Record
// means NotFound; Err carries the reason.
type Resolved struct {
	TypeName string
	Key      Key
	Record   Record
	Err      error
}

// Found reports whether the entity was resolved.
func (r Resolved) Found() bool {
	return r.Record != nil
}

// Object is a populated entity value.
type Object struct {
	TypeName string
	Fields   Record
}

// Ref points at another entity by key. Query execution resolves it through
// the local resolver when the type is resolvable here.
type Ref struct {
	TypeName string
	Key      Key
}

// Lookup fetches the record stored for a type and key.
type Lookup interface {
	LookupByKey(ctx context.Context, typeName string, key Key) (Record, bool, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, typeName string, key Key) (Record, bool, error)

// LookupByKey calls f.
func (f LookupFunc) LookupByKey(ctx context.Context, typeName string, key Key) (Record, bool, error) {
	return f(ctx, typeName, key)
}

// Clone returns a shallow copy of k.
func (k Key) Clone() Key {
	return maps.Clone(k)
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// MarshalJSON encodes the object with its __typename.
func (o Object) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o.Fields)+1)
	maps.Copy(out, o.Fields)
	out[TypenameField] = o.TypeName
	return json.Marshal(out)
}

// MarshalJSON encodes the reference as a federation representation:
// __typename plus the key fields.
func (r Ref) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Key)+1)
	maps.Copy(out, r.Key)
	out[TypenameField] = r.TypeName
	return json.Marshal(out)
}
