package bulwark

import "time"

// Config holds configuration for the resilience core. Values come from
// the gateway's configuration layer; this package only defines the shape
// and defaults.
type Config struct {
	// BreakerFailureThreshold is the number of consecutive failures that
	// trips a closed circuit breaker open.
	BreakerFailureThreshold int

	// BreakerCoolDown is how long an open breaker rejects calls before
	// allowing a half-open probe.
	BreakerCoolDown time.Duration

	// DLQRetention is how long DLQ entries are kept before the pruner
	// removes them. Pruning is the only automatic eviction: there is no
	// maximum retry count.
	DLQRetention time.Duration

	// PruneInterval is how often the background pruner sweeps.
	PruneInterval time.Duration

	// PruneBatchSize caps how many entries a single prune pass deletes
	// per store call, so maintenance never blocks readers for the
	// duration of a large delete.
	PruneBatchSize int

	// HealthUnhealthyAfter is the number of consecutive probe failures
	// after which a provider is classified unhealthy.
	HealthUnhealthyAfter int

	// HealthDegradedLatency is the probe latency above which a provider
	// that is otherwise passing checks is classified degraded.
	HealthDegradedLatency time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BreakerFailureThreshold: 5,
		BreakerCoolDown:         30 * time.Second,
		DLQRetention:            7 * 24 * time.Hour,
		PruneInterval:           1 * time.Hour,
		PruneBatchSize:          1000,
		HealthUnhealthyAfter:    3,
		HealthDegradedLatency:   2 * time.Second,
	}
}
