package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/xraph/bulwark"
)

// State is the current position of a breaker's state machine.
type State string

const (
	// StateClosed admits calls and counts consecutive failures.
	StateClosed State = "closed"

	// StateOpen rejects every call until the cool-down elapses.
	StateOpen State = "open"

	// StateHalfOpen admits a single probe whose outcome decides the
	// next state.
	StateHalfOpen State = "half_open"
)

// Config holds the per-provider trip parameters. The same Config applies
// to every breaker created by a Registry.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a Closed breaker Open.
	FailureThreshold int

	// CoolDown is how long an Open breaker rejects calls before
	// admitting a probe.
	CoolDown time.Duration
}

// DefaultConfig returns the trip parameters used when none are supplied.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
	}
}

// Validate reports whether the config is usable.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("bulwark: breaker failure threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.CoolDown <= 0 {
		return fmt.Errorf("bulwark: breaker cool-down must be positive, got %s", c.CoolDown)
	}
	return nil
}

// breaker is the state machine for a single provider. All fields are
// guarded by mu; calls never hold mu while invoking the provider.
type breaker struct {
	mu            sync.Mutex
	cfg           Config
	state         State
	failureCount  int
	openedAt      time.Time
	probeInFlight bool
}

func newBreaker(cfg Config) *breaker {
	return &breaker{cfg: cfg, state: StateClosed}
}

// transition is emitted to the registry whenever a breaker changes state
// so the caller can log and count it outside the lock.
type transition struct {
	from, to State
}

// allow decides whether a call may proceed at instant now. It returns
// bulwark.ErrBreakerOpen when the call must be short-circuited, and the
// state transition (if any) the decision caused.
func (b *breaker) allow(now time.Time) (error, *transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil, nil

	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.CoolDown {
			return bulwark.ErrBreakerOpen, nil
		}
		// Cool-down elapsed: this call becomes the probe.
		b.state = StateHalfOpen
		b.probeInFlight = true
		return nil, &transition{from: StateOpen, to: StateHalfOpen}

	case StateHalfOpen:
		if b.probeInFlight {
			return bulwark.ErrBreakerOpen, nil
		}
		b.probeInFlight = true
		return nil, nil

	default:
		return nil, nil
	}
}

// reportSuccess records a successful call at instant now.
func (b *breaker) reportSuccess() *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
		return nil

	case StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
		b.probeInFlight = false
		return &transition{from: StateHalfOpen, to: StateClosed}

	default:
		// A late success from a call admitted before the trip. The
		// breaker is already Open; nothing to do.
		return nil
	}
}

// reportFailure records a failed call at instant now.
func (b *breaker) reportFailure(now time.Time) *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount < b.cfg.FailureThreshold {
			return nil
		}
		b.state = StateOpen
		b.openedAt = now
		return &transition{from: StateClosed, to: StateOpen}

	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probeInFlight = false
		return &transition{from: StateHalfOpen, to: StateOpen}

	default:
		return nil
	}
}

// snapshot returns the breaker's current state and failure count.
func (b *breaker) snapshot() (State, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount
}
