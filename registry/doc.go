// Package registry declares the entity types a subgraph knows about.
//
// Each entity type names its key fields and tags every field as either
// Local (this service resolves it) or External (declared here, resolved by
// the owning service). Types and root query fields are registered on a
// Builder at start-up; Build validates the whole set and returns an
// immutable Registry that is read without locks while serving requests.
//
//	b := registry.NewBuilder()
//	_ = b.Register(registry.EntityType{
//	    Name:      "Market",
//	    KeyFields: []string{"id"},
//	    Fields: []registry.FieldDescriptor{
//	        registry.Owned("id", registry.NonNull(registry.ID)),
//	        registry.Owned("name", registry.NonNull(registry.String)),
//	        registry.Extern("version", registry.NonNull(registry.Int)),
//	    },
//	})
//	reg, err := b.Build()
//
// Build fails on the first registration error; a service must not start
// with a partially initialised registry. A Registry is never mutated; a
// reload builds a new one and readers pin a Snapshot for the duration of a
// request.
package registry
