// Package schema composes the federated SDL of a subgraph from its type
// registry.
//
// Compose produces two renderings of the same registry. Document.SDL is the
// subgraph SDL with @key, @external and @shareable annotations; it is what
// _service { sdl } returns and what WriteFile persists. Document.ExecutableSDL
// adds the federation prelude, the _Entity union and the _entities and _service
// root fields so that it loads as a complete schema for query validation.
//
// VerifyKeys checks the keys advertised in the SDL against the keys the
// reference resolver accepts. Services must call it before serving traffic.
//
// Merge is the downstream composition check. It unions several subgraph
// documents and reports ownership, type and key conflicts.
package schema
