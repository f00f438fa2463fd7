package store

import (
	"context"
	"encoding/json"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// Entry is one record of a type. The key is read from the record's key
// fields.
type Entry struct {
	TypeName string
	Record   entity.Record
}

// Writer stores records.
type Writer interface {
	Put(ctx context.Context, typeName string, rec entity.Record) error
}

// Seed writes entries to w in order and stops at the first error.
func Seed(ctx context.Context, w Writer, entries ...Entry) error {
	for _, e := range entries {
		if err := w.Put(ctx, e.TypeName, e.Record); err != nil {
			return err
		}
	}
	return nil
}

// canonicalOf returns the canonical key read from the key fields of rec.
func canonicalOf(catalog registry.Catalog, typeName string, rec entity.Record) (string, error) {
	t, err := catalog.Describe(typeName)
	if err != nil {
		return "", err
	}
	key := make(entity.Key, len(t.KeyFields))
	for _, name := range t.KeyFields {
		if v, ok := rec[name]; ok {
			key[name] = v
		}
	}
	return entity.Canonical(t, key)
}

func canonicalKey(catalog registry.Catalog, typeName string, key entity.Key) (string, error) {
	t, err := catalog.Describe(typeName)
	if err != nil {
		return "", err
	}
	return entity.Canonical(t, key)
}

func encodeRecord(component string, rec entity.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.WrapInvalid(err, component, "Put", "encode record")
	}
	return data, nil
}

func decodeRecord(component string, data []byte) (entity.Record, error) {
	var rec entity.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, component, "LookupByKey", "decode record: "+err.Error())
	}
	if rec == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, component, "LookupByKey", "record is null")
	}
	return rec, nil
}
