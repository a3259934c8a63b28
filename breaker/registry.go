package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xraph/bulwark/breaker"

// Status is a point-in-time snapshot of one provider's breaker.
type Status struct {
	Provider     string `json:"provider"`
	State        State  `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// Registry manages one breaker per provider. Breakers are created
// lazily on first evaluation; a provider that has never been evaluated
// has no record at all.
type Registry struct {
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
	breakers sync.Map // provider string -> *breaker

	transitions   metric.Int64Counter
	shortCircuits metric.Int64Counter
}

// Option customizes a Registry.
type Option func(*Registry)

// WithConfig overrides the default trip parameters.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMeter sets the OpenTelemetry meter used for breaker metrics.
// Defaults to the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(r *Registry) { r.initMetrics(m) }
}

// NewRegistry returns a Registry with the given options applied. An
// invalid Config is an error rather than a silently-clamped value.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		cfg:    DefaultConfig(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if r.transitions == nil {
		r.initMetrics(otel.Meter(meterName))
	}
	return r, nil
}

func (r *Registry) initMetrics(m metric.Meter) {
	var err error
	r.transitions, err = m.Int64Counter("bulwark.breaker.transitions",
		metric.WithDescription("Breaker state transitions"))
	if err != nil {
		r.transitions = noopCounter(m)
	}
	r.shortCircuits, err = m.Int64Counter("bulwark.breaker.short_circuits",
		metric.WithDescription("Calls rejected by an open breaker"))
	if err != nil {
		r.shortCircuits = noopCounter(m)
	}
}

func noopCounter(m metric.Meter) metric.Int64Counter {
	c, _ := m.Int64Counter("bulwark.breaker.discarded")
	return c
}

func (r *Registry) get(provider string) *breaker {
	if b, ok := r.breakers.Load(provider); ok {
		return b.(*breaker)
	}
	b, _ := r.breakers.LoadOrStore(provider, newBreaker(r.cfg))
	return b.(*breaker)
}

// Allow reports whether a call to provider may proceed. It returns
// bulwark.ErrBreakerOpen (wrapped with the provider name) when the
// breaker is short-circuiting.
func (r *Registry) Allow(provider string) error {
	b := r.get(provider)
	err, tr := b.allow(r.now())
	if tr != nil {
		r.recordTransition(provider, tr)
	}
	if err != nil {
		r.shortCircuits.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("provider", provider)))
		return fmt.Errorf("provider %q: %w", provider, err)
	}
	return nil
}

// ReportSuccess records a successful call to provider.
func (r *Registry) ReportSuccess(provider string) {
	if tr := r.get(provider).reportSuccess(); tr != nil {
		r.recordTransition(provider, tr)
	}
}

// ReportFailure records a failed call to provider.
func (r *Registry) ReportFailure(provider string) {
	if tr := r.get(provider).reportFailure(r.now()); tr != nil {
		r.recordTransition(provider, tr)
	}
}

// Do runs fn under the provider's breaker: it short-circuits when the
// breaker is open, and otherwise reports fn's outcome. fn's error is
// returned unchanged so callers can inspect it.
func (r *Registry) Do(ctx context.Context, provider string, fn func(context.Context) error) error {
	if err := r.Allow(provider); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		r.ReportFailure(provider)
		return err
	}
	r.ReportSuccess(provider)
	return nil
}

// Status snapshots every provider that has ever been evaluated, sorted
// by provider name.
func (r *Registry) Status() []Status {
	var out []Status
	r.breakers.Range(func(key, value any) bool {
		state, failures := value.(*breaker).snapshot()
		out = append(out, Status{
			Provider:     key.(string),
			State:        state,
			FailureCount: failures,
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// StatusFor returns the snapshot for a single provider. ok is false
// when the provider has never been evaluated; no zeroed record is
// synthesized.
func (r *Registry) StatusFor(provider string) (Status, bool) {
	v, ok := r.breakers.Load(provider)
	if !ok {
		return Status{}, false
	}
	state, failures := v.(*breaker).snapshot()
	return Status{Provider: provider, State: state, FailureCount: failures}, true
}

// Reset removes the provider's breaker entirely, as if it had never
// been evaluated. It reports whether a breaker existed.
func (r *Registry) Reset(provider string) bool {
	_, ok := r.breakers.LoadAndDelete(provider)
	if ok {
		r.logger.Info("breaker reset", "provider", provider)
	}
	return ok
}

func (r *Registry) recordTransition(provider string, tr *transition) {
	r.logger.Info("breaker state change",
		"provider", provider,
		"from", string(tr.from),
		"to", string(tr.to),
	)
	r.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("from", string(tr.from)),
		attribute.String("to", string(tr.to)),
	))
}
