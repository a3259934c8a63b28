//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
	"github.com/xraph/bulwark/store/postgres"
)

// setupTestStore creates a Postgres container and returns a connected
// migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("bulwark_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	store, err := postgres.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return store
}

func newEntry(entryType string, createdAt time.Time) *dlq.Entry {
	return &dlq.Entry{
		ID:        id.NewEntryID(),
		EntryType: entryType,
		Payload:   []byte(`{"tokens":42}`),
		Error:     "sink unavailable",
		Metadata:  map[string]string{"sink": "usage-accounting"},
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_PushGetRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := newEntry("usage_log", time.Now())
	if err := s.Push(ctx, e); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EntryType != e.EntryType || string(got.Payload) != string(e.Payload) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if got.Metadata["sink"] != "usage-accounting" {
		t.Fatalf("metadata not preserved: %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("created_at drift: pushed %s, got %s", e.CreatedAt, got.CreatedAt)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Get(context.Background(), id.NewEntryID())
	if !errors.Is(err, bulwark.ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestStore_RemoveIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := newEntry("usage_log", time.Now())
	if err := s.Push(ctx, e); err != nil {
		t.Fatalf("push: %v", err)
	}

	removed, err := s.Remove(ctx, e.ID)
	if err != nil || !removed {
		t.Fatalf("first remove = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = s.Remove(ctx, e.ID)
	if err != nil || removed {
		t.Fatalf("second remove = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestStore_MarkRetried(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := newEntry("usage_log", time.Now())
	if err := s.Push(ctx, e); err != nil {
		t.Fatalf("push: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.MarkRetried(ctx, e.ID); err != nil {
			t.Fatalf("mark retried %d: %v", i, err)
		}
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RetryCount != 3 {
		t.Fatalf("retry count = %d, want 3", got.RetryCount)
	}
	if got.LastRetryAt == nil {
		t.Fatal("last_retry_at not set")
	}

	if err := s.MarkRetried(ctx, id.NewEntryID()); !errors.Is(err, bulwark.ErrEntryNotFound) {
		t.Fatalf("mark retried on missing id = %v, want ErrEntryNotFound", err)
	}
}

func TestStore_ListPaginationWalk(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var pushed []*dlq.Entry
	for i := 0; i < 25; i++ {
		e := newEntry("usage_log", base.Add(time.Duration(i)*time.Second))
		if err := s.Push(ctx, e); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		pushed = append(pushed, e)
	}

	// Walk forward collecting every ID exactly once.
	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		q, err := page.Request{Cursor: cursor, Limit: 10}.Resolve(page.Defaults{Limit: 10, MaxLimit: 100})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		p, err := s.List(ctx, dlq.ListOpts{Page: q})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, e := range p.Items {
			if seen[e.ID.String()] {
				t.Fatalf("entry %s seen twice", e.ID)
			}
			seen[e.ID.String()] = true
		}
		pages++
		if !p.HasMore {
			break
		}
		cursor = p.NextCursor
	}
	if len(seen) != len(pushed) {
		t.Fatalf("walk saw %d entries, want %d", len(seen), len(pushed))
	}
	if pages != 3 {
		t.Fatalf("walk took %d pages, want 3", pages)
	}
}

func TestStore_ListBackwardFromCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var pushed []*dlq.Entry
	for i := 0; i < 10; i++ {
		e := newEntry("usage_log", base.Add(time.Duration(i)*time.Second))
		if err := s.Push(ctx, e); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		pushed = append(pushed, e)
	}

	// Backward from entry 6's cursor: the three entries before it, in
	// ascending display order.
	q, err := page.Request{
		Cursor:    pushed[6].Key().Encode(),
		Direction: "backward",
		Limit:     3,
	}.Resolve(page.Defaults{Limit: 10, MaxLimit: 100})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	p, err := s.List(ctx, dlq.ListOpts{Page: q})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(p.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(p.Items))
	}
	for i, want := range pushed[3:6] {
		if p.Items[i].ID.String() != want.ID.String() {
			t.Fatalf("item %d = %s, want %s", i, p.Items[i].ID, want.ID)
		}
	}
	if !p.HasMore {
		t.Fatal("expected more entries behind the backward page")
	}
	if p.NextCursor == "" || p.PrevCursor == "" {
		t.Fatalf("expected both cursors mid-walk, got next=%q prev=%q", p.NextCursor, p.PrevCursor)
	}
}

func TestStore_ListFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	usage := newEntry("usage_log", base)
	audit := newEntry("audit_event", base.Add(time.Second))
	retried := newEntry("usage_log", base.Add(2*time.Second))
	for _, e := range []*dlq.Entry{usage, audit, retried} {
		if err := s.Push(ctx, e); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		if err := s.MarkRetried(ctx, retried.ID); err != nil {
			t.Fatalf("mark retried: %v", err)
		}
	}

	q, _ := page.Request{}.Resolve(page.Defaults{Limit: 100, MaxLimit: 1000})

	p, err := s.List(ctx, dlq.ListOpts{EntryType: "usage_log", Page: q})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(p.Items) != 2 {
		t.Fatalf("type filter returned %d items, want 2", len(p.Items))
	}

	p, err = s.List(ctx, dlq.ListOpts{MaxRetries: 5, Page: q})
	if err != nil {
		t.Fatalf("list by retries: %v", err)
	}
	for _, e := range p.Items {
		if e.RetryCount >= 5 {
			t.Fatalf("entry %s has retry_count %d, filter is exclusive at 5", e.ID, e.RetryCount)
		}
	}
	if len(p.Items) != 2 {
		t.Fatalf("retry filter returned %d items, want 2", len(p.Items))
	}
}

func TestStore_PruneBatches(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cutoff := time.Now().UTC().Truncate(time.Millisecond)
	old := cutoff.Add(-time.Hour)
	for i := 0; i < 7; i++ {
		if err := s.Push(ctx, newEntry("usage_log", old.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("push old %d: %v", i, err)
		}
	}
	keep := newEntry("usage_log", cutoff)
	if err := s.Push(ctx, keep); err != nil {
		t.Fatalf("push keep: %v", err)
	}

	// Batch size 3: the backlog drains over multiple calls.
	var total int64
	for {
		n, err := s.Prune(ctx, cutoff, 3)
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if n == 0 {
			break
		}
		if n > 3 {
			t.Fatalf("batch deleted %d entries, limit was 3", n)
		}
		total += n
	}
	if total != 7 {
		t.Fatalf("pruned %d entries, want 7", total)
	}

	// The entry exactly at the cutoff survives: prune is strictly-older.
	if _, err := s.Get(ctx, keep.ID); err != nil {
		t.Fatalf("cutoff entry was pruned: %v", err)
	}
}

func TestStore_StatsAndClear(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		if err := s.Push(ctx, newEntry("usage_log", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if err := s.Push(ctx, newEntry("audit_event", base.Add(10*time.Second))); err != nil {
		t.Fatalf("push: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 {
		t.Fatalf("total = %d, want 4", stats.Total)
	}
	if stats.ByType["usage_log"] != 3 || stats.ByType["audit_event"] != 1 {
		t.Fatalf("by type = %v", stats.ByType)
	}
	if stats.ByRetryCount[0] != 4 {
		t.Fatalf("by retry count = %v", stats.ByRetryCount)
	}

	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 4 {
		t.Fatalf("clear removed %d, want 4", n)
	}
	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after clear = %d", count)
	}
}

func TestStore_ConcurrentMarkRetried(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := newEntry("usage_log", time.Now())
	if err := s.Push(ctx, e); err != nil {
		t.Fatalf("push: %v", err)
	}

	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			errCh <- s.MarkRetried(ctx, e.ID)
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent mark retried: %v", err)
		}
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RetryCount != 10 {
		t.Fatalf("retry count = %d, want 10 (no lost increments)", got.RetryCount)
	}
}
