package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

// DefaultPageDefaults bounds list queries when the caller does not
// override them: 100 entries per page, 1000 maximum.
var DefaultPageDefaults = page.Defaults{Limit: 100, MaxLimit: 1000}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger for the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithPageDefaults overrides the default and maximum list page sizes.
func WithPageDefaults(d page.Defaults) ServiceOption {
	return func(s *Service) { s.pageDefaults = d }
}

// Service provides high-level DLQ operations over a Store: it assigns
// identity and timestamps on push, resolves pagination requests on list,
// and logs storage failures with enough context to diagnose them.
type Service struct {
	store        Store
	logger       *slog.Logger
	pageDefaults page.Defaults
}

// NewService creates a DLQ service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		logger:       slog.Default(),
		pageDefaults: DefaultPageDefaults,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push persists a new entry. The ID is assigned when nil and CreatedAt
// defaults to now; both are immutable afterwards. CreatedAt is truncated
// to millisecond precision so it compares exactly with pagination
// cursors.
func (s *Service) Push(ctx context.Context, entry *Entry) (id.EntryID, error) {
	if entry.ID.IsNil() {
		entry.ID = id.NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Millisecond)

	if err := s.store.Push(ctx, entry); err != nil {
		s.logger.Error("dlq push failed",
			slog.String("entry_id", entry.ID.String()),
			slog.String("entry_type", entry.EntryType),
			slog.String("error", err.Error()),
		)
		return id.Nil, fmt.Errorf("dlq: push: %w", err)
	}

	s.logger.Debug("dlq entry pushed",
		slog.String("entry_id", entry.ID.String()),
		slog.String("entry_type", entry.EntryType),
	)
	return entry.ID, nil
}

// Get retrieves an entry by ID.
func (s *Service) Get(ctx context.Context, entryID id.EntryID) (*Entry, error) {
	return s.store.Get(ctx, entryID)
}

// ListParams is the raw list request as it arrives from the
// administration layer.
type ListParams struct {
	// EntryType filters by exact entry type; empty means all.
	EntryType string
	// MaxRetries, when positive, keeps only entries with RetryCount
	// strictly below this value.
	MaxRetries int
	// Cursor, Direction, and Limit are the pagination inputs.
	Cursor    string
	Direction string
	Limit     int
}

// List validates the request, resolves the pagination query, and returns
// one page of entries. Malformed cursors and unknown directions surface
// as page.ValidationError.
func (s *Service) List(ctx context.Context, params ListParams) (page.Page[*Entry], error) {
	q, err := page.Request{
		Cursor:    params.Cursor,
		Direction: params.Direction,
		Limit:     params.Limit,
	}.Resolve(s.pageDefaults)
	if err != nil {
		return page.Page[*Entry]{}, err
	}

	return s.store.List(ctx, ListOpts{
		EntryType:  params.EntryType,
		MaxRetries: params.MaxRetries,
		Page:       q,
	})
}

// Remove deletes an entry. Returns true if it existed; removing an
// already-removed entry returns false, not an error.
func (s *Service) Remove(ctx context.Context, entryID id.EntryID) (bool, error) {
	removed, err := s.store.Remove(ctx, entryID)
	if err != nil {
		return false, fmt.Errorf("dlq: remove: %w", err)
	}
	return removed, nil
}

// MarkRetried records a failed replay attempt: RetryCount is incremented
// and LastRetryAt set to now. The entry stays queued for a future
// attempt.
func (s *Service) MarkRetried(ctx context.Context, entryID id.EntryID) error {
	return s.store.MarkRetried(ctx, entryID)
}

// Prune deletes all entries created strictly before the cutoff and
// returns the number deleted.
func (s *Service) Prune(ctx context.Context, before time.Time) (int64, error) {
	count, err := s.store.Prune(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("dlq: prune: %w", err)
	}
	return count, nil
}

// Clear deletes every entry unconditionally and returns the number
// deleted.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	count, err := s.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("dlq: clear: %w", err)
	}
	return count, nil
}

// Len returns the total entry count.
func (s *Service) Len(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Stats returns the total plus per-type and per-retry-count breakdowns.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// Store returns the underlying store for direct access.
func (s *Service) Store() Store {
	return s.store
}
