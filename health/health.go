// Package health tracks per-provider probe results and derives a coarse
// healthy/degraded/unhealthy classification. The tracker is fed by an
// external active prober, never by real dispatch traffic, and mirrors
// the breaker registry's read contract: a provider that was never
// observed has no record and is reported not-found rather than
// defaulted to healthy.
package health

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the derived classification for one provider.
type State string

const (
	// StateHealthy means the most recent probes succeeded within the
	// latency threshold.
	StateHealthy State = "healthy"

	// StateDegraded means the provider answers but slowly, or has a
	// short failure streak below the unhealthy threshold.
	StateDegraded State = "degraded"

	// StateUnhealthy means the consecutive-failure threshold was
	// reached.
	StateUnhealthy State = "unhealthy"
)

// Thresholds controls how probe observations map to a State.
type Thresholds struct {
	// UnhealthyAfter is the number of consecutive probe failures that
	// classifies a provider unhealthy.
	UnhealthyAfter int

	// DegradedLatency is the probe latency above which a succeeding
	// provider is classified degraded.
	DegradedLatency time.Duration
}

// DefaultThresholds returns the classification thresholds used when
// none are supplied.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UnhealthyAfter:  3,
		DegradedLatency: 2 * time.Second,
	}
}

// Validate reports whether the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.UnhealthyAfter < 1 {
		return fmt.Errorf("bulwark: health unhealthy-after must be >= 1, got %d", t.UnhealthyAfter)
	}
	if t.DegradedLatency <= 0 {
		return fmt.Errorf("bulwark: health degraded-latency must be positive, got %s", t.DegradedLatency)
	}
	return nil
}

// Status is a point-in-time snapshot of one provider's health.
type Status struct {
	Provider             string        `json:"provider"`
	State                State         `json:"state"`
	Latency              time.Duration `json:"latency"`
	LastCheckAt          time.Time     `json:"last_check_at"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	LastError            string        `json:"last_error,omitempty"`
}

// record is the mutable state for one provider, guarded by its own mu.
type record struct {
	mu sync.Mutex
	st Status
}

// Tracker holds rolling health state per provider. The zero value is
// not usable; construct with NewTracker.
type Tracker struct {
	thresholds Thresholds
	now        func() time.Time
	records    sync.Map // provider string -> *record
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithThresholds overrides the default classification thresholds.
func WithThresholds(t Thresholds) TrackerOption {
	return func(tr *Tracker) { tr.thresholds = t }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(tr *Tracker) {
		if now != nil {
			tr.now = now
		}
	}
}

// NewTracker returns a Tracker with the given options applied.
func NewTracker(opts ...TrackerOption) (*Tracker, error) {
	t := &Tracker{
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.thresholds.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Observe records one probe result for provider. err nil means the
// probe succeeded; latency is the probe round-trip time either way.
func (t *Tracker) Observe(provider string, latency time.Duration, err error) {
	v, ok := t.records.Load(provider)
	if !ok {
		v, _ = t.records.LoadOrStore(provider, &record{st: Status{Provider: provider}})
	}
	rec := v.(*record)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.st.Latency = latency
	rec.st.LastCheckAt = t.now().UTC()
	if err != nil {
		rec.st.ConsecutiveFailures++
		rec.st.ConsecutiveSuccesses = 0
		rec.st.LastError = err.Error()
	} else {
		rec.st.ConsecutiveSuccesses++
		rec.st.ConsecutiveFailures = 0
		rec.st.LastError = ""
	}
	rec.st.State = t.classify(rec.st)
}

// classify derives the State for a snapshot. Caller holds the record
// lock.
func (t *Tracker) classify(st Status) State {
	switch {
	case st.ConsecutiveFailures >= t.thresholds.UnhealthyAfter:
		return StateUnhealthy
	case st.ConsecutiveFailures > 0:
		return StateDegraded
	case st.Latency > t.thresholds.DegradedLatency:
		return StateDegraded
	default:
		return StateHealthy
	}
}

// Get returns the snapshot for a single provider. ok is false for a
// provider that was never observed.
func (t *Tracker) Get(provider string) (Status, bool) {
	v, ok := t.records.Load(provider)
	if !ok {
		return Status{}, false
	}
	rec := v.(*record)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.st, true
}

// All snapshots every tracked provider, sorted by provider name. Each
// snapshot is internally consistent; the set as a whole may be slightly
// stale relative to concurrent probes.
func (t *Tracker) All() []Status {
	var out []Status
	t.records.Range(func(_, value any) bool {
		rec := value.(*record)
		rec.mu.Lock()
		out = append(out, rec.st)
		rec.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Forget drops all state for provider, used when health checks are
// disabled for it. It reports whether the provider was tracked.
func (t *Tracker) Forget(provider string) bool {
	_, ok := t.records.LoadAndDelete(provider)
	return ok
}
