// Package breaker implements per-provider circuit breakers for the hot
// dispatch path. Each provider has an independent Closed/Open/HalfOpen
// state machine; a misbehaving upstream is short-circuited without
// affecting any other provider.
//
// # State machine
//
//   - Closed: calls pass through. Consecutive failures are counted; a
//     success resets the count. Reaching the configured threshold trips
//     the breaker Open.
//   - Open: calls are rejected immediately with [bulwark.ErrBreakerOpen]
//     until the cool-down has elapsed, then the breaker moves to
//     HalfOpen.
//   - HalfOpen: exactly one probe call is admitted. Its outcome decides
//     the transition: success closes the breaker, failure re-opens it
//     and restarts the cool-down.
//
// # Reads
//
// [Registry.Status] snapshots every provider ever evaluated;
// [Registry.StatusFor] reports ok=false for a provider never evaluated;
// a zeroed Closed record is never synthesized, so operators can tell
// "never called" from "currently healthy".
//
// Synchronization is per provider. Reporting an outcome takes one small
// mutex scoped to that provider's breaker; there is no registry-wide
// lock on the dispatch path.
package breaker
