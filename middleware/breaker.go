package middleware

import (
	"context"

	"github.com/xraph/bulwark/breaker"
)

// Breaker returns middleware that runs each call under the provider's
// circuit breaker. Calls against an open breaker are rejected with
// bulwark.ErrBreakerOpen before reaching the upstream; completed calls
// report their outcome back to the registry.
func Breaker(registry *breaker.Registry) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		return registry.Do(ctx, c.Provider, next)
	}
}
