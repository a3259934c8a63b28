package dlq

import (
	"context"
	"time"

	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

// ListOpts controls filtering and pagination for DLQ list queries at the
// store level. The page query must already be resolved; the Service does
// that before calling the store.
type ListOpts struct {
	// EntryType filters by exact entry type. Empty means all types.
	EntryType string
	// MaxRetries, when positive, selects entries with RetryCount strictly
	// less than this value. Zero means no retry filter.
	MaxRetries int
	// Page is the resolved keyset query.
	Page page.Query
}

// Stats is the aggregate breakdown used by the administration layer.
type Stats struct {
	Total        int64            `json:"total"`
	ByType       map[string]int64 `json:"by_type"`
	ByRetryCount map[int]int64    `json:"by_retry_count"`
}

// Store defines the persistence contract for the dead letter queue.
// Backends: Postgres, Redis, Mongo, and Memory.
type Store interface {
	// Push stores a new entry. It either fully succeeds or fails with a
	// storage error; there are no partial writes.
	Push(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by ID. Returns bulwark.ErrEntryNotFound
	// when absent.
	Get(ctx context.Context, entryID id.EntryID) (*Entry, error)

	// List returns one page of entries matching the given options,
	// ordered ascending by (created_at, id).
	List(ctx context.Context, opts ListOpts) (page.Page[*Entry], error)

	// Remove deletes an entry by ID. Returns true if an entry existed
	// and was deleted, false if it was already absent. Double-delete is
	// never an error.
	Remove(ctx context.Context, entryID id.EntryID) (bool, error)

	// MarkRetried increments RetryCount and sets LastRetryAt to now.
	// The increment is atomic relative to the read it is based on:
	// concurrent calls on the same entry never lose increments.
	// Returns bulwark.ErrEntryNotFound when absent.
	MarkRetried(ctx context.Context, entryID id.EntryID) error

	// Prune deletes entries with CreatedAt strictly before the cutoff,
	// at most limit per call (limit <= 0 means no cap). Returns the
	// number deleted.
	Prune(ctx context.Context, before time.Time, limit int) (int64, error)

	// Clear deletes all entries unconditionally. Returns the number
	// deleted.
	Clear(ctx context.Context) (int64, error)

	// Count returns the total entry count.
	Count(ctx context.Context) (int64, error)

	// Stats returns the total plus per-type and per-retry-count
	// breakdowns.
	Stats(ctx context.Context) (*Stats, error)
}
