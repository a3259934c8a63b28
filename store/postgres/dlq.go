package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

const entryColumns = `id, entry_type, payload, error, retry_count, metadata, created_at, last_retry_at`

// Push stores a new entry in the dead letter queue.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bulwark_dlq (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID.String(), entry.EntryType, entry.Payload, entry.Error,
		entry.RetryCount, entry.Metadata, entry.CreatedAt, entry.LastRetryAt,
	)
	if err != nil {
		return fmt.Errorf("bulwark/postgres: push: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, entryID id.EntryID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM bulwark_dlq WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, bulwark.ErrEntryNotFound
		}
		return nil, fmt.Errorf("bulwark/postgres: get: %w", err)
	}
	return e, nil
}

// List returns one page of entries in ascending (created_at, id) order.
// The window is fetched with a tuple comparison against the cursor key,
// one row past the limit to detect continuation in the scan direction;
// the opposite edge is settled with an EXISTS probe.
func (s *Store) List(ctx context.Context, opts dlq.ListOpts) (page.Page[*dlq.Entry], error) {
	q := opts.Page
	var zero page.Page[*dlq.Entry]

	where, args := listFilters(opts)
	argIdx := len(args) + 1

	query := `SELECT ` + entryColumns + ` FROM bulwark_dlq` + where
	switch q.Direction {
	case page.Backward:
		if q.Before != nil {
			query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
			args = append(args, q.Before.At, q.Before.ID.String())
			argIdx += 2
		}
		query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIdx)
	default:
		if q.After != nil {
			query += fmt.Sprintf(" AND (created_at, id) > ($%d, $%d)", argIdx, argIdx+1)
			args = append(args, q.After.At, q.After.ID.String())
			argIdx += 2
		}
		query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", argIdx)
	}
	args = append(args, q.Limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return zero, fmt.Errorf("bulwark/postgres: list: %w", err)
	}
	defer rows.Close()

	var window []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return zero, fmt.Errorf("bulwark/postgres: scan row: %w", scanErr)
		}
		window = append(window, e)
	}
	if err = rows.Err(); err != nil {
		return zero, fmt.Errorf("bulwark/postgres: iterate rows: %w", err)
	}

	moreInScanDir := len(window) > q.Limit
	if moreInScanDir {
		window = window[:q.Limit]
	}
	if q.Direction == page.Backward {
		reverse(window)
	}

	var moreForward, moreBackward bool
	if q.Direction == page.Backward {
		moreBackward = moreInScanDir
		if q.Before != nil && len(window) > 0 {
			moreForward, err = s.existsBeyond(ctx, opts, window[len(window)-1].Key(), ">")
			if err != nil {
				return zero, err
			}
		}
	} else {
		moreForward = moreInScanDir
		if q.After != nil && len(window) > 0 {
			moreBackward, err = s.existsBeyond(ctx, opts, window[0].Key(), "<")
			if err != nil {
				return zero, err
			}
		}
	}

	return page.Build(window, (*dlq.Entry).Key, q.Direction, moreForward, moreBackward), nil
}

// existsBeyond reports whether any entry matching the list filters lies
// strictly beyond key in the given direction ("<" or ">").
func (s *Store) existsBeyond(ctx context.Context, opts dlq.ListOpts, key page.Cursor, op string) (bool, error) {
	where, args := listFilters(opts)
	argIdx := len(args) + 1

	query := fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM bulwark_dlq%s AND (created_at, id) %s ($%d, $%d))`,
		where, op, argIdx, argIdx+1,
	)
	args = append(args, key.At, key.ID.String())

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("bulwark/postgres: edge probe: %w", err)
	}
	return exists, nil
}

// listFilters renders the shared WHERE clause for List and its edge
// probes. The returned clause always starts with " WHERE 1=1" so
// callers can append conjunctions unconditionally.
func listFilters(opts dlq.ListOpts) (string, []any) {
	where := " WHERE 1=1"
	var args []any

	if opts.EntryType != "" {
		args = append(args, opts.EntryType)
		where += fmt.Sprintf(" AND entry_type = $%d", len(args))
	}
	if opts.MaxRetries > 0 {
		args = append(args, opts.MaxRetries)
		where += fmt.Sprintf(" AND retry_count < $%d", len(args))
	}
	return where, args
}

// Remove deletes an entry by ID. Double-delete is not an error.
func (s *Store) Remove(ctx context.Context, entryID id.EntryID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bulwark_dlq WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("bulwark/postgres: remove: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRetried increments the retry count and stamps the attempt. The
// increment happens inside the UPDATE so concurrent calls never lose
// updates.
func (s *Store) MarkRetried(ctx context.Context, entryID id.EntryID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bulwark_dlq
		SET retry_count = retry_count + 1, last_retry_at = NOW()
		WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("bulwark/postgres: mark retried: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bulwark.ErrEntryNotFound
	}
	return nil
}

// Prune deletes entries created strictly before the cutoff, at most
// limit per call. The subquery keeps each delete bounded so a large
// backlog is cleared in batches instead of one long-held lock.
func (s *Store) Prune(ctx context.Context, before time.Time, limit int) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if limit > 0 {
		tag, err = s.pool.Exec(ctx, `
			DELETE FROM bulwark_dlq
			WHERE id IN (
				SELECT id FROM bulwark_dlq
				WHERE created_at < $1
				ORDER BY created_at, id
				LIMIT $2
			)`,
			before, limit,
		)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM bulwark_dlq WHERE created_at < $1`,
			before,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("bulwark/postgres: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Clear deletes all entries unconditionally.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bulwark_dlq`)
	if err != nil {
		return 0, fmt.Errorf("bulwark/postgres: clear: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bulwark_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("bulwark/postgres: count: %w", err)
	}
	return count, nil
}

// Stats returns the total plus per-type and per-retry-count breakdowns.
func (s *Store) Stats(ctx context.Context) (*dlq.Stats, error) {
	stats := &dlq.Stats{
		ByType:       make(map[string]int64),
		ByRetryCount: make(map[int]int64),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT entry_type, COUNT(*) FROM bulwark_dlq GROUP BY entry_type`)
	if err != nil {
		return nil, fmt.Errorf("bulwark/postgres: stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entryType string
			count     int64
		)
		if err := rows.Scan(&entryType, &count); err != nil {
			return nil, fmt.Errorf("bulwark/postgres: scan type stats: %w", err)
		}
		stats.ByType[entryType] = count
		stats.Total += count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("bulwark/postgres: iterate type stats: %w", err)
	}

	retryRows, err := s.pool.Query(ctx,
		`SELECT retry_count, COUNT(*) FROM bulwark_dlq GROUP BY retry_count`)
	if err != nil {
		return nil, fmt.Errorf("bulwark/postgres: stats by retry count: %w", err)
	}
	defer retryRows.Close()
	for retryRows.Next() {
		var (
			retries int
			count   int64
		)
		if err := retryRows.Scan(&retries, &count); err != nil {
			return nil, fmt.Errorf("bulwark/postgres: scan retry stats: %w", err)
		}
		stats.ByRetryCount[retries] = count
	}
	if err = retryRows.Err(); err != nil {
		return nil, fmt.Errorf("bulwark/postgres: iterate retry stats: %w", err)
	}

	return stats, nil
}

// scanEntry scans a single entry row.
func scanEntry(row pgx.Row) (*dlq.Entry, error) {
	var (
		e     dlq.Entry
		idStr string
	)
	err := row.Scan(
		&idStr, &e.EntryType, &e.Payload, &e.Error,
		&e.RetryCount, &e.Metadata, &e.CreatedAt, &e.LastRetryAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseEntryID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("bulwark/postgres: parse entry id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	return &e, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
