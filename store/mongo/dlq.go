package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/bulwark"
	"github.com/xraph/bulwark/dlq"
	"github.com/xraph/bulwark/id"
	"github.com/xraph/bulwark/page"
)

// Push stores a new entry in the dead letter queue.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.db.Collection(colDLQ).InsertOne(ctx, toModel(entry))
	if err != nil {
		return fmt.Errorf("bulwark/mongo: push: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, entryID id.EntryID) (*dlq.Entry, error) {
	var m entryModel
	err := s.db.Collection(colDLQ).FindOne(ctx, bson.M{"_id": entryID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bulwark.ErrEntryNotFound
		}
		return nil, fmt.Errorf("bulwark/mongo: get: %w", err)
	}
	return fromModel(&m)
}

// List returns one page of entries in ascending (created_at, _id)
// order. The cursor key turns into a tuple comparison expressed as an
// $or filter; the window is fetched one row past the limit and the
// opposite edge is settled with a count probe.
func (s *Store) List(ctx context.Context, opts dlq.ListOpts) (page.Page[*dlq.Entry], error) {
	q := opts.Page
	var zero page.Page[*dlq.Entry]

	filter := listFilter(opts)
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

	switch q.Direction {
	case page.Backward:
		if q.Before != nil {
			filter = append(filter, keyCompare("$lt", *q.Before))
		}
		sort = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	default:
		if q.After != nil {
			filter = append(filter, keyCompare("$gt", *q.After))
		}
	}

	findOpts := options.Find().SetSort(sort).SetLimit(int64(q.Limit + 1))
	cursor, err := s.db.Collection(colDLQ).Find(ctx, andFilter(filter), findOpts)
	if err != nil {
		return zero, fmt.Errorf("bulwark/mongo: list: %w", err)
	}
	defer cursor.Close(ctx)

	var models []entryModel
	if err := cursor.All(ctx, &models); err != nil {
		return zero, fmt.Errorf("bulwark/mongo: list decode: %w", err)
	}

	window := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromModel(&models[i])
		if convErr != nil {
			return zero, convErr
		}
		window = append(window, e)
	}

	moreInScanDir := len(window) > q.Limit
	if moreInScanDir {
		window = window[:q.Limit]
	}
	if q.Direction == page.Backward {
		reverse(window)
	}

	var moreForward, moreBackward bool
	if q.Direction == page.Backward {
		moreBackward = moreInScanDir
		if q.Before != nil && len(window) > 0 {
			moreForward, err = s.existsBeyond(ctx, opts, window[len(window)-1].Key(), "$gt")
			if err != nil {
				return zero, err
			}
		}
	} else {
		moreForward = moreInScanDir
		if q.After != nil && len(window) > 0 {
			moreBackward, err = s.existsBeyond(ctx, opts, window[0].Key(), "$lt")
			if err != nil {
				return zero, err
			}
		}
	}

	return page.Build(window, (*dlq.Entry).Key, q.Direction, moreForward, moreBackward), nil
}

// existsBeyond reports whether any entry matching the list filters lies
// strictly beyond key in the given direction ("$lt" or "$gt").
func (s *Store) existsBeyond(ctx context.Context, opts dlq.ListOpts, key page.Cursor, op string) (bool, error) {
	filter := append(listFilter(opts), keyCompare(op, key))
	countOpts := options.Count().SetLimit(1)
	n, err := s.db.Collection(colDLQ).CountDocuments(ctx, andFilter(filter), countOpts)
	if err != nil {
		return false, fmt.Errorf("bulwark/mongo: edge probe: %w", err)
	}
	return n > 0, nil
}

// keyCompare renders a strict tuple comparison against a cursor key:
// entries whose (created_at, _id) is beyond key in the op direction.
func keyCompare(op string, key page.Cursor) bson.M {
	return bson.M{"$or": []bson.M{
		{"created_at": bson.M{op: key.At}},
		{"created_at": key.At, "_id": bson.M{op: key.ID.String()}},
	}}
}

func listFilter(opts dlq.ListOpts) []bson.M {
	var filter []bson.M
	if opts.EntryType != "" {
		filter = append(filter, bson.M{"entry_type": opts.EntryType})
	}
	if opts.MaxRetries > 0 {
		filter = append(filter, bson.M{"retry_count": bson.M{"$lt": opts.MaxRetries}})
	}
	return filter
}

func andFilter(conds []bson.M) bson.M {
	if len(conds) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": conds}
}

// Remove deletes an entry by ID. Double-delete is not an error.
func (s *Store) Remove(ctx context.Context, entryID id.EntryID) (bool, error) {
	res, err := s.db.Collection(colDLQ).DeleteOne(ctx, bson.M{"_id": entryID.String()})
	if err != nil {
		return false, fmt.Errorf("bulwark/mongo: remove: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// MarkRetried increments the retry count and stamps the attempt. The
// $inc happens server-side, so concurrent calls never lose updates.
func (s *Store) MarkRetried(ctx context.Context, entryID id.EntryID) error {
	res, err := s.db.Collection(colDLQ).UpdateOne(ctx,
		bson.M{"_id": entryID.String()},
		bson.M{
			"$inc": bson.M{"retry_count": 1},
			"$set": bson.M{"last_retry_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("bulwark/mongo: mark retried: %w", err)
	}
	if res.MatchedCount == 0 {
		return bulwark.ErrEntryNotFound
	}
	return nil
}

// Prune deletes entries created strictly before the cutoff, at most
// limit per call.
func (s *Store) Prune(ctx context.Context, before time.Time, limit int) (int64, error) {
	col := s.db.Collection(colDLQ)
	filter := bson.M{"created_at": bson.M{"$lt": before}}

	if limit <= 0 {
		res, err := col.DeleteMany(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("bulwark/mongo: prune: %w", err)
		}
		return res.DeletedCount, nil
	}

	// Bounded batch: collect one batch of IDs in cutoff order, delete
	// by ID, and let the caller loop.
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})
	cursor, err := col.Find(ctx, filter, findOpts)
	if err != nil {
		return 0, fmt.Errorf("bulwark/mongo: prune select: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("bulwark/mongo: prune decode: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	res, err := col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("bulwark/mongo: prune delete: %w", err)
	}
	return res.DeletedCount, nil
}

// Clear deletes all entries unconditionally.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.Collection(colDLQ).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("bulwark/mongo: clear: %w", err)
	}
	return res.DeletedCount, nil
}

// Count returns the total number of entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.db.Collection(colDLQ).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("bulwark/mongo: count: %w", err)
	}
	return n, nil
}

// Stats returns the total plus per-type and per-retry-count breakdowns.
func (s *Store) Stats(ctx context.Context) (*dlq.Stats, error) {
	col := s.db.Collection(colDLQ)
	stats := &dlq.Stats{
		ByType:       make(map[string]int64),
		ByRetryCount: make(map[int]int64),
	}

	byType, err := col.Aggregate(ctx, mongoGroupPipeline("$entry_type"))
	if err != nil {
		return nil, fmt.Errorf("bulwark/mongo: stats by type: %w", err)
	}
	defer byType.Close(ctx)
	for byType.Next(ctx) {
		var row struct {
			Key   string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := byType.Decode(&row); err != nil {
			return nil, fmt.Errorf("bulwark/mongo: decode type stats: %w", err)
		}
		stats.ByType[row.Key] = row.Count
		stats.Total += row.Count
	}
	if err := byType.Err(); err != nil {
		return nil, fmt.Errorf("bulwark/mongo: iterate type stats: %w", err)
	}

	byRetries, err := col.Aggregate(ctx, mongoGroupPipeline("$retry_count"))
	if err != nil {
		return nil, fmt.Errorf("bulwark/mongo: stats by retry count: %w", err)
	}
	defer byRetries.Close(ctx)
	for byRetries.Next(ctx) {
		var row struct {
			Key   int   `bson:"_id"`
			Count int64 `bson:"count"`
		}
		if err := byRetries.Decode(&row); err != nil {
			return nil, fmt.Errorf("bulwark/mongo: decode retry stats: %w", err)
		}
		stats.ByRetryCount[row.Key] = row.Count
	}
	if err := byRetries.Err(); err != nil {
		return nil, fmt.Errorf("bulwark/mongo: iterate retry stats: %w", err)
	}

	return stats, nil
}

func mongoGroupPipeline(field string) []bson.M {
	return []bson.M{
		{"$group": bson.M{
			"_id":   field,
			"count": bson.M{"$sum": 1},
		}},
	}
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
