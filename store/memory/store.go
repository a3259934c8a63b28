// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

// Ensure Store implements the dlq subsystem store at compile time.
var _ dlq.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	closed  bool
	entries map[string]*dlq.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]*dlq.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return bulwark.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later writes fail with
// bulwark.ErrStoreClosed; closing twice is fine.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Push stores a new entry.
func (m *Store) Push(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return bulwark.ErrStoreClosed
	}
	cp := cloneEntry(entry)
	m.entries[entry.ID.String()] = cp
	return nil
}

// Get retrieves an entry by ID.
func (m *Store) Get(_ context.Context, entryID id.EntryID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryID.String()]
	if !ok {
		return nil, bulwark.ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

// List returns one page of entries matching the given options, ordered
// ascending by (created_at, id).
func (m *Store) List(_ context.Context, opts dlq.ListOpts) (page.Page[*dlq.Entry], error) {
	m.mu.RLock()
	matched := make([]*dlq.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if opts.EntryType != "" && e.EntryType != opts.EntryType {
			continue
		}
		if opts.MaxRetries > 0 && e.RetryCount >= opts.MaxRetries {
			continue
		}
		matched = append(matched, cloneEntry(e))
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, k int) bool {
		return matched[i].Key().Less(matched[k].Key())
	})

	return page.Slice(matched, (*dlq.Entry).Key, opts.Page), nil
}

// Remove deletes an entry by ID. Double-delete returns false, never an
// error.
func (m *Store) Remove(_ context.Context, entryID id.EntryID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

// MarkRetried increments RetryCount and sets LastRetryAt. The write lock
// makes the read-increment-write atomic: concurrent callers never lose
// increments.
func (m *Store) MarkRetried(_ context.Context, entryID id.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return bulwark.ErrStoreClosed
	}
	e, ok := m.entries[entryID.String()]
	if !ok {
		return bulwark.ErrEntryNotFound
	}
	e.RetryCount++
	now := time.Now().UTC()
	e.LastRetryAt = &now
	return nil
}

// Prune deletes entries with CreatedAt strictly before the cutoff, up to
// limit per call.
func (m *Store) Prune(_ context.Context, before time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.entries {
		if limit > 0 && count >= int64(limit) {
			break
		}
		if e.CreatedAt.Before(before) {
			delete(m.entries, key)
			count++
		}
	}
	return count, nil
}

// Clear deletes all entries unconditionally.
func (m *Store) Clear(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := int64(len(m.entries))
	m.entries = make(map[string]*dlq.Entry)
	return count, nil
}

// Count returns the total entry count.
func (m *Store) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.entries)), nil
}

// Stats returns the total plus per-type and per-retry-count breakdowns.
func (m *Store) Stats(_ context.Context) (*dlq.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &dlq.Stats{
		Total:        int64(len(m.entries)),
		ByType:       make(map[string]int64),
		ByRetryCount: make(map[int]int64),
	}
	for _, e := range m.entries {
		s.ByType[e.EntryType]++
		s.ByRetryCount[e.RetryCount]++
	}
	return s, nil
}

// cloneEntry copies an entry so callers can mutate without racing with
// the store.
func cloneEntry(e *dlq.Entry) *dlq.Entry {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.LastRetryAt != nil {
		t := *e.LastRetryAt
		cp.LastRetryAt = &t
	}
	return &cp
}
