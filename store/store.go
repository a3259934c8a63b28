// Package store defines the aggregate persistence interface. The dlq
// subsystem defines its own store interface; the composite Store adds
// lifecycle operations. Backends: Postgres, Redis, Mongo, and Memory.
package store

import (
	"context"

	"github.com/xraph/bulwark/dlq"
)

// Store is the aggregate persistence interface. A single backend
// (postgres, redis, mongo, memory) implements the dlq subsystem store
// plus lifecycle operations.
type Store interface {
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
