package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// Canonical encodes key in the key-field order of t. Two keys are equal iff
// their canonical encodings are equal. ID values are normalised to strings,
// Int values to integers.
func Canonical(t registry.EntityType, key Key) (string, error) {
	norm, err := NormalizeKey(t, key)
	if err != nil {
		return "", err
	}
	values := make([]any, len(t.KeyFields))
	for i, name := range t.KeyFields {
		values[i] = norm[name]
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", errors.WrapInvalid(err, "entity", "Canonical", "encode key")
	}
	return string(data), nil
}

// NormalizeKey checks that key carries exactly the key fields of t with
// values compatible with their scalar types and returns the normalised key.
func NormalizeKey(t registry.EntityType, key Key) (Key, error) {
	var missing, extra []string
	for _, name := range t.KeyFields {
		if _, ok := key[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range key {
		if !t.IsKeyField(name) {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		slices.Sort(extra)
		return nil, &errors.IncompleteKeyError{TypeName: t.Name, Missing: missing, Extra: extra}
	}

	norm := make(Key, len(t.KeyFields))
	for _, name := range t.KeyFields {
		f, _ := t.Field(name)
		scalar := registry.BaseName(f.Type)
		v, ok := CoerceScalar(scalar, key[name])
		if !ok {
			return nil, &errors.KeyTypeError{TypeName: t.Name, Field: name, Want: scalar, Got: key[name]}
		}
		norm[name] = v
	}
	return norm, nil
}

// CoerceScalar converts a decoded value to the canonical Go value of a
// built-in scalar: ID becomes string, Int int64, Float float64.
func CoerceScalar(scalar string, v any) (any, bool) {
	switch scalar {
	case registry.ID:
		switch x := v.(type) {
		case string:
			return x, true
		default:
			if i, ok := integer(v); ok {
				return strconv.FormatInt(i, 10), true
			}
		}
	case registry.String:
		if s, ok := v.(string); ok {
			return s, true
		}
	case registry.Int:
		if i, ok := integer(v); ok && i >= math.MinInt32 && i <= math.MaxInt32 {
			return i, true
		}
	case registry.Float:
		if f, ok := float(v); ok {
			return f, true
		}
	case registry.Boolean:
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return nil, false
}

func integer(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
			return int64(x), true
		}
	}
	return 0, false
}

func float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	if i, ok := integer(v); ok {
		return float64(i), true
	}
	return 0, false
}

// FormatKey renders key for log messages.
func FormatKey(key Key) string {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(key))
	}
	return string(data)
}
