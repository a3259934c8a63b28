package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

// Push stores a new entry and indexes it by creation time.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, entryKey(eID), entryToMap(entry))
	pipe.ZAdd(ctx, entryIndexKey, goredis.Z{
		Score:  float64(entry.CreatedAt.UnixMilli()),
		Member: eID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bulwark/redis: push: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, entryID id.EntryID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, entryKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("bulwark/redis: get: %w", err)
	}
	if len(vals) == 0 {
		return nil, bulwark.ErrEntryNotFound
	}
	return mapToEntry(vals)
}

// List returns one page of entries. The sorted-set index yields IDs
// already in (created_at, id) order; filters that Redis cannot index
// (entry type, retry count) are applied after loading, then the page
// window is cut with the shared keyset arithmetic.
func (s *Store) List(ctx context.Context, opts dlq.ListOpts) (page.Page[*dlq.Entry], error) {
	var zero page.Page[*dlq.Entry]

	ids, err := s.client.ZRange(ctx, entryIndexKey, 0, -1).Result()
	if err != nil {
		return zero, fmt.Errorf("bulwark/redis: list index: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, entryKey(eID)).Result()
		if getErr != nil {
			return zero, fmt.Errorf("bulwark/redis: list load %s: %w", eID, getErr)
		}
		if len(vals) == 0 {
			// Index member without a hash: a concurrent remove between
			// ZRange and HGetAll.
			continue
		}
		e, convErr := mapToEntry(vals)
		if convErr != nil {
			return zero, convErr
		}
		if opts.EntryType != "" && e.EntryType != opts.EntryType {
			continue
		}
		if opts.MaxRetries > 0 && e.RetryCount >= opts.MaxRetries {
			continue
		}
		entries = append(entries, e)
	}

	return page.Slice(entries, (*dlq.Entry).Key, opts.Page), nil
}

// Remove deletes an entry by ID. Double-delete is not an error.
func (s *Store) Remove(ctx context.Context, entryID id.EntryID) (bool, error) {
	eID := entryID.String()

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, entryKey(eID))
	pipe.ZRem(ctx, entryIndexKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("bulwark/redis: remove: %w", err)
	}
	return del.Val() > 0, nil
}

// MarkRetried increments the retry count and stamps the attempt.
// HIncrBy is atomic on the server, so concurrent calls never lose
// increments.
func (s *Store) MarkRetried(ctx context.Context, entryID id.EntryID) error {
	key := entryKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bulwark/redis: mark retried exists: %w", err)
	}
	if exists == 0 {
		return bulwark.ErrEntryNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "retry_count", 1)
	pipe.HSet(ctx, key, "last_retry_at", time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bulwark/redis: mark retried: %w", err)
	}
	return nil
}

// Prune deletes entries created strictly before the cutoff, at most
// limit per call.
func (s *Store) Prune(ctx context.Context, before time.Time, limit int) (int64, error) {
	count := int64(limit)
	if limit <= 0 {
		count = -1 // no cap
	}

	// Entry timestamps are millisecond-truncated, so "strictly before
	// the cutoff" is an exclusive bound on the cutoff's millisecond
	// unless the cutoff carries a sub-millisecond remainder.
	maxScore := strconv.FormatInt(before.UnixMilli(), 10)
	if before.Equal(time.UnixMilli(before.UnixMilli())) {
		maxScore = "(" + maxScore
	}

	ids, err := s.client.ZRangeByScore(ctx, entryIndexKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: count,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("bulwark/redis: prune range: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, entryKey(eID))
		pipe.ZRem(ctx, entryIndexKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bulwark/redis: prune delete: %w", err)
	}
	return int64(len(ids)), nil
}

// Clear deletes all entries unconditionally.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ids, err := s.client.ZRange(ctx, entryIndexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("bulwark/redis: clear index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, entryKey(eID))
	}
	pipe.Del(ctx, entryIndexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bulwark/redis: clear: %w", err)
	}
	return int64(len(ids)), nil
}

// Count returns the total number of entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, entryIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("bulwark/redis: count: %w", err)
	}
	return count, nil
}

// Stats returns the total plus per-type and per-retry-count breakdowns.
func (s *Store) Stats(ctx context.Context) (*dlq.Stats, error) {
	ids, err := s.client.ZRange(ctx, entryIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("bulwark/redis: stats index: %w", err)
	}

	stats := &dlq.Stats{
		ByType:       make(map[string]int64),
		ByRetryCount: make(map[int]int64),
	}
	for _, eID := range ids {
		vals, getErr := s.client.HMGet(ctx, entryKey(eID), "entry_type", "retry_count").Result()
		if getErr != nil {
			return nil, fmt.Errorf("bulwark/redis: stats load %s: %w", eID, getErr)
		}
		entryType, ok := vals[0].(string)
		if !ok {
			continue // removed concurrently
		}
		retries := 0
		if v, ok := vals[1].(string); ok {
			retries, _ = strconv.Atoi(v) //nolint:errcheck // best-effort parse from trusted Redis data
		}
		stats.Total++
		stats.ByType[entryType]++
		stats.ByRetryCount[retries]++
	}
	return stats, nil
}

// ── helpers ──

func entryToMap(e *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":          e.ID.String(),
		"entry_type":  e.EntryType,
		"payload":     string(e.Payload),
		"error":       e.Error,
		"retry_count": strconv.Itoa(e.RetryCount),
		"created_at":  e.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(e.Metadata) > 0 {
		data, _ := json.Marshal(e.Metadata) //nolint:errcheck // map[string]string cannot fail to marshal
		m["metadata"] = string(data)
	}
	if e.LastRetryAt != nil {
		m["last_retry_at"] = e.LastRetryAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToEntry(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseEntryID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("bulwark/redis: parse entry id: %w", err)
	}
	retryCount, _ := strconv.Atoi(m["retry_count"])               //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:         eID,
		EntryType:  m["entry_type"],
		Payload:    []byte(m["payload"]),
		Error:      m["error"],
		RetryCount: retryCount,
		CreatedAt:  createdAt,
	}

	if v := m["metadata"]; v != "" {
		meta := make(map[string]string)
		if err := json.Unmarshal([]byte(v), &meta); err == nil {
			e.Metadata = meta
		}
	}
	if v := m["last_retry_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.LastRetryAt = &t
	}
	return e, nil
}
