// Package fedgraph builds GraphQL federation subgraphs: services that each
// own part of a shared entity graph and resolve references to their
// entities for a federation router.
//
// # Architecture
//
// A subgraph is assembled from a few layers, each in its own package:
//
//	registry          entity types, key fields, field ownership, root fields
//	schema            SDL composition, key verification, manifests, Merge
//	entity            batch reference resolution over a Lookup
//	facade            operations behind root fields, stubs and references
//	store             Lookup backends: memory, NATS KV, Redis, record cache
//	subgraphs         the concrete market and inventory subgraphs
//	gateway/graphql   HTTP GraphQL endpoint and NATS entities endpoint
//	config            layered JSON configuration with env overrides
//
// Supporting packages carry the ambient stack: errors (classified
// Transient/Invalid/Fatal errors), metric (Prometheus registry), natsclient
// (connection management, request/reply, KV), health (probes behind
// /health), pkg/worker, pkg/retry and pkg/cache.
//
// # Federation Contract
//
// Every subgraph serves two fields besides its own root fields:
//
//	_service { sdl }                     the subgraph SDL with @key, @external, @shareable
//	_entities(representations: [_Any!]!) one result per representation, in order
//
// A representation names a type with __typename and carries that type's key
// fields. Representations that cannot be resolved yield null at their index
// and an error with code ENTITY_NOT_FOUND or TIMEOUT; the rest of the batch
// still resolves.
//
// # Binaries
//
//	cmd/subgraph          serves one subgraph (-service market|inventory)
//	cmd/schema-exporter   writes SDL and manifests for all subgraphs and merges them
//
// Build and run:
//
//	go build -o bin/subgraph ./cmd/subgraph
//	./bin/subgraph --service=market
//
//	go run ./cmd/schema-exporter -out ./schemas
package fedgraph
