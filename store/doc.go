// Package store provides entity.Lookup implementations: a static in-memory
// catalog, a NATS JetStream key-value bucket and Redis.
//
// Records are addressed by type name and the canonical encoding of their
// key (see entity.Canonical), so keys that differ only in the spelling of
// an ID value ("7" and 7) address the same record.
package store
