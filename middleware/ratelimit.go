package middleware

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit returns middleware that throttles calls per provider using
// a token bucket of r events per second with the given burst. The call
// blocks until a token is available or the context is cancelled; the
// cancellation error is returned to the caller.
//
// Each provider gets its own independent limiter, created on first use.
func RateLimit(r rate.Limit, burst int) Middleware {
	var limiters sync.Map // provider string -> *rate.Limiter
	return func(ctx context.Context, c *Call, next Handler) error {
		v, ok := limiters.Load(c.Provider)
		if !ok {
			v, _ = limiters.LoadOrStore(c.Provider, rate.NewLimiter(r, burst))
		}
		if err := v.(*rate.Limiter).Wait(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}
