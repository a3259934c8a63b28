package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/breaker"
	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/health"
	"github.com/xraph/bulwark/store"
)

// Engine is the assembled resilience core. Construct with New, then
// Start to launch background maintenance and Stop to shut down.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	cfg    bulwark.Config

	dlqService *dlq.Service
	replayer   *dlq.Replayer
	pruner     *dlq.Pruner
	breakers   *breaker.Registry
	health     *health.Tracker

	// Construction-time inputs consumed by New.
	breakerCfg    *breaker.Config
	healthCfg     *health.Thresholds
	handlers      []dlq.Handler
	pruneDisabled bool
	pruneCron     string

	mu      sync.Mutex
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConfig overrides the default core configuration.
func WithConfig(cfg bulwark.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithBreakerConfig overrides the breaker trip parameters derived from
// the core Config.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(e *Engine) { e.breakerCfg = &cfg }
}

// WithHealthThresholds overrides the health classification thresholds
// derived from the core Config.
func WithHealthThresholds(t health.Thresholds) Option {
	return func(e *Engine) { e.healthCfg = &t }
}

// WithReplayHandler registers a replay handler for one entry type.
// Repeat for each replayable type.
func WithReplayHandler(h dlq.Handler) Option {
	return func(e *Engine) { e.handlers = append(e.handlers, h) }
}

// WithPruneDisabled turns off the background pruner. Entries then live
// until removed explicitly.
func WithPruneDisabled() Option {
	return func(e *Engine) { e.pruneDisabled = true }
}

// WithPruneSchedule runs prune sweeps on a cron schedule (standard
// 5-field expressions or descriptors like "@every 6h") instead of the
// fixed interval from Config.
func WithPruneSchedule(expr string) Option {
	return func(e *Engine) { e.pruneCron = expr }
}

// New assembles an Engine. A store is required; New returns
// bulwark.ErrNoStore without one.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		cfg:    bulwark.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, bulwark.ErrNoStore
	}

	e.dlqService = dlq.NewService(e.store, dlq.WithLogger(e.logger))
	e.replayer = dlq.NewReplayer(e.dlqService, dlq.WithReplayLogger(e.logger))
	for _, h := range e.handlers {
		e.replayer.Register(h)
	}

	prunerOpts := []dlq.PrunerOption{
		dlq.WithRetention(e.cfg.DLQRetention),
		dlq.WithPruneInterval(e.cfg.PruneInterval),
		dlq.WithPruneBatchSize(e.cfg.PruneBatchSize),
		dlq.WithPruneLogger(e.logger),
	}
	if e.pruneCron != "" {
		schedule, err := dlq.ParseSchedule(e.pruneCron)
		if err != nil {
			return nil, fmt.Errorf("engine: prune schedule %q: %w", e.pruneCron, err)
		}
		prunerOpts = append(prunerOpts, dlq.WithPruneCron(schedule))
	}
	e.pruner = dlq.NewPruner(e.store, prunerOpts...)

	breakerCfg := breaker.Config{
		FailureThreshold: e.cfg.BreakerFailureThreshold,
		CoolDown:         e.cfg.BreakerCoolDown,
	}
	if e.breakerCfg != nil {
		breakerCfg = *e.breakerCfg
	}
	registry, err := breaker.NewRegistry(
		breaker.WithConfig(breakerCfg),
		breaker.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}
	e.breakers = registry

	healthCfg := health.Thresholds{
		UnhealthyAfter:  e.cfg.HealthUnhealthyAfter,
		DegradedLatency: e.cfg.HealthDegradedLatency,
	}
	if e.healthCfg != nil {
		healthCfg = *e.healthCfg
	}
	tracker, err := health.NewTracker(health.WithThresholds(healthCfg))
	if err != nil {
		return nil, err
	}
	e.health = tracker

	return e, nil
}

// Start verifies store connectivity and launches background
// maintenance. Starting twice is an error.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine: already started")
	}

	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("engine: store ping: %w", err)
	}

	if !e.pruneDisabled {
		if err := e.pruner.Start(ctx); err != nil {
			return fmt.Errorf("engine: start pruner: %w", err)
		}
	}

	e.started = true
	e.logger.Info("bulwark engine started",
		slog.Bool("prune_enabled", !e.pruneDisabled),
	)
	return nil
}

// Stop halts background maintenance and closes the store. Safe to call
// once after a successful Start.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return fmt.Errorf("engine: not started")
	}
	e.started = false

	if !e.pruneDisabled {
		if err := e.pruner.Stop(ctx); err != nil {
			return fmt.Errorf("engine: stop pruner: %w", err)
		}
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("engine: close store: %w", err)
	}

	e.logger.Info("bulwark engine stopped")
	return nil
}

// DLQ returns the dead letter queue service.
func (e *Engine) DLQ() *dlq.Service { return e.dlqService }

// Replayer returns the DLQ replayer.
func (e *Engine) Replayer() *dlq.Replayer { return e.replayer }

// Pruner returns the background pruner, for triggering manual sweeps.
func (e *Engine) Pruner() *dlq.Pruner { return e.pruner }

// Breakers returns the circuit breaker registry.
func (e *Engine) Breakers() *breaker.Registry { return e.breakers }

// Health returns the provider health tracker.
func (e *Engine) Health() *health.Tracker { return e.health }

// BreakerStatus returns the breaker snapshot for one provider as the
// administration layer consumes it: a provider never evaluated is
// bulwark.ErrProviderNotFound, never a zeroed Closed record.
func (e *Engine) BreakerStatus(provider string) (breaker.Status, error) {
	st, ok := e.breakers.StatusFor(provider)
	if !ok {
		return breaker.Status{}, fmt.Errorf("%w: %q", bulwark.ErrProviderNotFound, provider)
	}
	return st, nil
}

// HealthStatus returns the health snapshot for one provider. A provider
// without health checks enabled is bulwark.ErrProviderNotFound,
// distinct from "tracked and currently healthy".
func (e *Engine) HealthStatus(provider string) (health.Status, error) {
	st, ok := e.health.Get(provider)
	if !ok {
		return health.Status{}, fmt.Errorf("%w: %q", bulwark.ErrProviderNotFound, provider)
	}
	return st, nil
}
