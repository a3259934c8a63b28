// Package dlq provides the durable dead letter queue for write-path side
// effects that failed to persist. It supports inspection, filtering,
// replay, and pruning.
//
// When a side-effect write fails (for example a usage accounting record
// that could not be stored), the producer calls [Service.Push] to capture
// the serialized payload, the error, and auxiliary metadata. The entry
// stays queued until an operator or the replayer disposes of it: a
// transient downstream failure must never cause silent loss.
//
// # Entry
//
// An [Entry] captures:
//   - EntryType: a string tag identifying what kind of operation failed
//   - Payload: the raw serialized payload; the DLQ never interprets it
//   - Error: the original failure, for operators
//   - RetryCount / LastRetryAt: replay attempts so far
//   - CreatedAt: push time, immutable; the ordering and pruning key
//   - Metadata: auxiliary string-to-string context
//
// # Replay
//
// A [Replayer] maps each known entry type to a [Handler] that
// deserializes the payload and replays the operation against its real
// destination. Success removes the entry; a transient destination failure
// marks it retried and keeps it queued; an unregistered type or a payload
// the handler cannot decode is a permanent, client-visible rejection.
// There is no automatic retry ceiling: a permanently failing entry is an
// operator-visible signal until the pruner ages it out.
//
// # Pruning
//
// The [Pruner] sweeps entries older than the configured retention on a
// schedule, deleting in bounded batches so maintenance never blocks
// concurrent readers for the duration of a large delete.
package dlq
