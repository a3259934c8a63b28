package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/id"
)

// Handler replays one kind of failed operation against its real
// destination. A handler that cannot decode the payload must return an
// error wrapping bulwark.ErrBadPayload so the replayer can tell a
// permanent rejection from a transient destination failure.
type Handler interface {
	// EntryType returns the entry type this handler replays.
	EntryType() string

	// Replay deserializes the payload and re-executes the original
	// operation. A plain error return is treated as transient.
	Replay(ctx context.Context, payload []byte) error
}

// handlerFunc adapts a function to the Handler interface.
type handlerFunc struct {
	entryType string
	fn        func(ctx context.Context, payload []byte) error
}

func (h *handlerFunc) EntryType() string { return h.entryType }

func (h *handlerFunc) Replay(ctx context.Context, payload []byte) error {
	return h.fn(ctx, payload)
}

// NewHandler adapts a function to the Handler interface.
func NewHandler(entryType string, fn func(ctx context.Context, payload []byte) error) Handler {
	return &handlerFunc{entryType: entryType, fn: fn}
}

// Typed builds a Handler that decodes the payload into T with the given
// codec before invoking fn. A payload that does not decode is reported as
// bulwark.ErrBadPayload, a permanent rejection that is never retried. A nil
// codec selects JSON.
func Typed[T any](entryType string, codec Codec, fn func(ctx context.Context, v T) error) Handler {
	if codec == nil {
		codec = &JSONCodec{}
	}
	return NewHandler(entryType, func(ctx context.Context, payload []byte) error {
		var v T
		if err := codec.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("%w: decode %s as %s: %v", bulwark.ErrBadPayload, entryType, codec.Name(), err)
		}
		return fn(ctx, v)
	})
}

// Outcome is what a replay attempt did to the entry.
type Outcome string

const (
	// OutcomeReplayed means the operation succeeded and the entry was
	// removed; completion is at-most-once once removed.
	OutcomeReplayed Outcome = "replayed"
	// OutcomeRetried means the destination is still failing; the entry
	// was marked retried and stays queued for a future attempt.
	OutcomeRetried Outcome = "retried"
)

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithReplayLogger sets the structured logger for the replayer.
func WithReplayLogger(l *slog.Logger) ReplayerOption {
	return func(r *Replayer) { r.logger = l }
}

// WithReplayConcurrency bounds how many entries ReplayAll processes at
// once. Default 4.
func WithReplayConcurrency(n int) ReplayerOption {
	return func(r *Replayer) { r.concurrency = n }
}

// Replayer dispatches queued entries to the handler registered for their
// entry type. Registration is additive: supporting a new replayable type
// means registering one more handler, not growing a conditional.
type Replayer struct {
	svc         *Service
	logger      *slog.Logger
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewReplayer creates a Replayer over a DLQ service.
func NewReplayer(svc *Service, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		svc:         svc,
		logger:      slog.Default(),
		concurrency: 4,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a handler. Registering a second handler for the same
// entry type replaces the first.
func (r *Replayer) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.EntryType()] = h
}

// handlerFor returns the handler for an entry type, if registered.
func (r *Replayer) handlerFor(entryType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[entryType]
	return h, ok
}

// Replay attempts to replay a single entry.
//
//   - Success removes the entry and returns OutcomeReplayed.
//   - A transient destination failure marks the entry retried, keeps it
//     queued, and returns OutcomeRetried with a nil error: from the DLQ's
//     point of view this is the expected recovery path, not a failure.
//   - An unregistered entry type or an undecodable payload is a permanent
//     client-visible rejection (bulwark.ErrNoHandler / ErrBadPayload);
//     the entry is left untouched.
func (r *Replayer) Replay(ctx context.Context, entryID id.EntryID) (Outcome, error) {
	entry, err := r.svc.Get(ctx, entryID)
	if err != nil {
		return "", err
	}

	h, ok := r.handlerFor(entry.EntryType)
	if !ok {
		return "", fmt.Errorf("%w: %q", bulwark.ErrNoHandler, entry.EntryType)
	}

	replayErr := h.Replay(ctx, entry.Payload)
	if replayErr == nil {
		if _, rmErr := r.svc.Remove(ctx, entry.ID); rmErr != nil {
			// The operation already ran. Surface the store failure so
			// the caller knows the entry may be replayed again.
			return "", fmt.Errorf("dlq: remove after replay: %w", rmErr)
		}
		r.logger.Info("dlq entry replayed",
			slog.String("entry_id", entry.ID.String()),
			slog.String("entry_type", entry.EntryType),
		)
		return OutcomeReplayed, nil
	}

	if errors.Is(replayErr, bulwark.ErrBadPayload) {
		return "", replayErr
	}

	if err := r.svc.MarkRetried(ctx, entry.ID); err != nil {
		return "", fmt.Errorf("dlq: mark retried: %w", err)
	}
	r.logger.Warn("dlq replay failed, entry kept",
		slog.String("entry_id", entry.ID.String()),
		slog.String("entry_type", entry.EntryType),
		slog.Int("retry_count", entry.RetryCount+1),
		slog.String("error", replayErr.Error()),
	)
	return OutcomeRetried, nil
}

// Summary reports what a batch replay did.
type Summary struct {
	Replayed int64 `json:"replayed"`
	Retried  int64 `json:"retried"`
	Rejected int64 `json:"rejected"`
}

// ReplayAll walks the queue (optionally filtered by entry type) and
// replays each entry with bounded concurrency. Permanent rejections are
// counted and skipped; storage errors abort the walk.
func (r *Replayer) ReplayAll(ctx context.Context, entryType string) (*Summary, error) {
	var replayed, retried, rejected atomic.Int64

	cursor := ""
	for {
		p, err := r.svc.List(ctx, ListParams{EntryType: entryType, Cursor: cursor})
		if err != nil {
			return nil, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, entry := range p.Items {
			g.Go(func() error {
				outcome, replayErr := r.Replay(gctx, entry.ID)
				switch {
				case replayErr == nil && outcome == OutcomeReplayed:
					replayed.Add(1)
				case replayErr == nil:
					retried.Add(1)
				case errors.Is(replayErr, bulwark.ErrNoHandler),
					errors.Is(replayErr, bulwark.ErrBadPayload):
					rejected.Add(1)
				case errors.Is(replayErr, bulwark.ErrEntryNotFound):
					// Removed concurrently; nothing left to do.
				default:
					return replayErr
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if !p.HasMore {
			break
		}
		cursor = p.NextCursor
	}

	return &Summary{
		Replayed: replayed.Load(),
		Retried:  retried.Load(),
		Rejected: rejected.Load(),
	}, nil
}
