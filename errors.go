package bulwark

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("bulwark: no store configured")
	ErrStoreClosed = errors.New("bulwark: store closed")

	// Not found errors. A missing record is always reported as not
	// found, never synthesized as a zeroed default: operators must be
	// able to tell "never seen" from "seen and currently zero".
	ErrEntryNotFound    = errors.New("bulwark: dlq entry not found")
	ErrProviderNotFound = errors.New("bulwark: provider not found")

	// Breaker errors.
	ErrBreakerOpen = errors.New("bulwark: circuit breaker open")

	// Replay errors. Both are permanent, client-class conditions: the
	// entry is left in place and never silently retried.
	ErrNoHandler  = errors.New("bulwark: no replay handler registered for entry type")
	ErrBadPayload = errors.New("bulwark: payload does not match the shape expected by the replay handler")
)
