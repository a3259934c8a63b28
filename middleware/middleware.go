// Package middleware provides composable middleware for upstream
// provider calls. Middleware wraps a call synchronously and can modify
// execution (short-circuit on an open breaker, rate-limit, log, record
// metrics, recover from panics, enforce deadlines).
package middleware

import (
	"context"
	"time"
)

// Call describes one upstream provider call flowing through the chain.
type Call struct {
	// Provider is the upstream provider name, e.g. "openai".
	Provider string

	// Operation names the call for logs and metrics, e.g. "chat" or
	// "probe".
	Operation string

	// Timeout, when non-zero, bounds the call via the Timeout
	// middleware.
	Timeout time.Duration
}

// Handler is the terminal function that performs the provider call.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the call being made, and the next handler. Middleware
// MUST call next to continue the chain unless short-circuiting.
type Middleware func(ctx context.Context, c *Call, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, breaker, ratelimit) executes as:
//
//	logging → breaker → ratelimit → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, c, prev)
			}
		}
		return h(ctx)
	}
}
