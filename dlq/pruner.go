package dlq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// pruneParser supports standard 5-field cron and descriptors like
// "@every 6h" for prune schedules.
var pruneParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression into a schedule usable with
// WithPruneCron.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return pruneParser.Parse(expr)
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

// WithRetention sets how long entries are kept. Default 7 days.
func WithRetention(d time.Duration) PrunerOption {
	return func(p *Pruner) { p.retention = d }
}

// WithPruneInterval sets how often the pruner sweeps. Default 1 hour.
// Ignored when a cron schedule is set.
func WithPruneInterval(d time.Duration) PrunerOption {
	return func(p *Pruner) { p.interval = d }
}

// WithPruneCron sets a cron schedule for sweeps instead of a fixed
// interval.
func WithPruneCron(s cronlib.Schedule) PrunerOption {
	return func(p *Pruner) { p.schedule = s }
}

// WithPruneBatchSize caps how many entries a single store call deletes.
// The sweep loops until the backlog is drained, releasing between
// batches so readers are never blocked for the whole delete. Default
// 1000.
func WithPruneBatchSize(n int) PrunerOption {
	return func(p *Pruner) { p.batchSize = n }
}

// WithPruneLogger sets the structured logger for the pruner.
func WithPruneLogger(l *slog.Logger) PrunerOption {
	return func(p *Pruner) { p.logger = l }
}

// Pruner removes entries older than the retention window on a schedule.
// TTL pruning is the only mechanism that disposes of entries nobody ever
// successfully replays; there is no maximum-retry eviction. It runs as an
// independent background goroutine, decoupled from request handling.
type Pruner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	batchSize int
	schedule  cronlib.Schedule
	logger    *slog.Logger

	// now is the clock, injectable for tests.
	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPruner creates a Pruner over a DLQ store.
func NewPruner(store Store, opts ...PrunerOption) *Pruner {
	p := &Pruner{
		store:     store,
		retention: 7 * 24 * time.Hour,
		interval:  1 * time.Hour,
		batchSize: 1000,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the sweep goroutine.
func (p *Pruner) Start(_ context.Context) error {
	p.wg.Add(1)
	go p.loop()
	p.logger.Info("dlq pruner started",
		slog.Duration("retention", p.retention),
		slog.Duration("interval", p.interval),
	)
	return nil
}

// Stop signals the pruner to stop and waits for the goroutine to finish.
func (p *Pruner) Stop(_ context.Context) error {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("dlq pruner stopped")
	return nil
}

func (p *Pruner) loop() {
	defer p.wg.Done()

	if p.schedule != nil {
		for {
			next := p.schedule.Next(p.now())
			timer := time.NewTimer(next.Sub(p.now()))
			select {
			case <-p.stopCh:
				timer.Stop()
				return
			case <-timer.C:
				p.Sweep(context.Background())
			}
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Sweep(context.Background())
		}
	}
}

// Sweep deletes everything older than the retention window, in batches.
// Exposed so operators can trigger an immediate sweep.
func (p *Pruner) Sweep(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)

	var total int64
	for {
		n, err := p.store.Prune(ctx, cutoff, p.batchSize)
		if err != nil {
			p.logger.Error("dlq prune sweep failed",
				slog.Time("cutoff", cutoff),
				slog.Int64("pruned_so_far", total),
				slog.String("error", err.Error()),
			)
			return
		}
		total += n
		if p.batchSize <= 0 || n < int64(p.batchSize) {
			break
		}

		select {
		case <-p.stopCh:
			return
		default:
		}
	}

	if total > 0 {
		p.logger.Info("dlq prune sweep completed",
			slog.Time("cutoff", cutoff),
			slog.Int64("pruned", total),
		)
	}
}
