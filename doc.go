// Package bulwark provides the control-plane resilience layer for a
// multi-tenant gateway that routes requests to pluggable upstream
// providers. It is a library, not a service: import it, configure a
// store, and wire the pieces into your dispatch and administration
// layers.
//
// Three primitives keep a gateway correct and available under partial
// failure:
//
//   - Keyset pagination ([github.com/xraph/bulwark/page]): opaque-cursor
//     paging over immutable (created_at, id) keys, shared by every list
//     surface and correct under concurrent inserts and deletes.
//   - A durable dead letter queue ([github.com/xraph/bulwark/dlq]):
//     failed write-path side effects are never silently lost; entries can
//     be inspected, filtered, replayed, and pruned.
//   - Per-provider failure isolation ([github.com/xraph/bulwark/breaker]
//     and [github.com/xraph/bulwark/health]): independent circuit
//     breakers and rolling health state on the hot dispatch path.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithStore(memory.New()),
//	    engine.WithReplayHandler(usageSink),
//	)
//	if err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(ctx)
//
// # Architecture
//
// Bulwark follows a composable store pattern: the dlq package defines its
// own store interface and a single backend (Postgres, Redis, Mongo, or
// Memory) implements it together with lifecycle operations. All entity
// IDs use TypeID (type-prefixed, K-sortable, UUIDv7-based identifiers),
// which also serve as pagination tie-breakers.
//
// Two failure policies coexist and must never be conflated: the DLQ's
// "never lose a write" contract, and best-effort sinks
// ([github.com/xraph/bulwark/sink]) whose failures are logged and
// dropped. Pick the policy per side effect, explicitly.
package bulwark
