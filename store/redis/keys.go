package redis

// Redis key naming conventions for bulwark data.
// All keys are prefixed with "bulwark:" to avoid collisions.

const keyPrefix = "bulwark:"

// entryKey returns the Hash key for a DLQ entry: bulwark:dlq:{id}
func entryKey(id string) string { return keyPrefix + "dlq:" + id }

// entryIndexKey is the Sorted Set indexing all entry IDs, scored by
// created_at in unix milliseconds. Members with equal score sort
// lexicographically, which matches the (created_at, id) keyset order
// because entry IDs are K-sortable with a fixed prefix.
const entryIndexKey = keyPrefix + "dlq_index"
