package store

import (
	"context"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/registry"
)

// Memory is a static catalog held in memory. It is read-only once built and
// safe for concurrent lookups.
type Memory struct {
	catalog registry.Catalog
	records map[string]map[string]entity.Record
}

// NewMemory builds a catalog from entries. Every entry must name a
// registered type and carry a valid key.
func NewMemory(catalog registry.Catalog, entries ...Entry) (*Memory, error) {
	m := &Memory{
		catalog: catalog,
		records: make(map[string]map[string]entity.Record),
	}
	for _, e := range entries {
		canonical, err := canonicalOf(catalog, e.TypeName, e.Record)
		if err != nil {
			return nil, err
		}
		byKey := m.records[e.TypeName]
		if byKey == nil {
			byKey = make(map[string]entity.Record)
			m.records[e.TypeName] = byKey
		}
		byKey[canonical] = e.Record.Clone()
	}
	return m, nil
}

// MustMemory is NewMemory for static catalogs known at compile time.
func MustMemory(catalog registry.Catalog, entries ...Entry) *Memory {
	m, err := NewMemory(catalog, entries...)
	if err != nil {
		panic(err)
	}
	return m
}

// LookupByKey implements entity.Lookup.
func (m *Memory) LookupByKey(_ context.Context, typeName string, key entity.Key) (entity.Record, bool, error) {
	canonical, err := canonicalKey(m.catalog, typeName, key)
	if err != nil {
		return nil, false, err
	}
	rec, ok := m.records[typeName][canonical]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// Len returns the number of records.
func (m *Memory) Len() int {
	n := 0
	for _, byKey := range m.records {
		n += len(byKey)
	}
	return n
}
