// Package mongo implements the bulwark store on MongoDB using the
// official driver. Entries live in a single bulwark_dlq collection with
// a compound (created_at, _id) index so keyset pagination and prune
// cutoffs are both index walks.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/bulwark/dlq"
)

const colDLQ = "bulwark_dlq"

var _ dlq.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store. The caller owns the
// client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on the given database.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []mongod.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "entry_type", Value: 1}}},
	}
	_, err := s.db.Collection(colDLQ).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("bulwark/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("bulwark/mongo: ping: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

// isNoDocuments returns true when err indicates no matching document.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
