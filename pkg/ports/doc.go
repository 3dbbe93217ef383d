// Package ports defines the interfaces the registry depends on: the shared
// state client, the observability sink, and the principal resolver. Adapters
// live under pkg/adapters; this package also ships a reusable contract
// test suite so every StateClient implementation is held to the same behavior.
package ports
