package page

import (
	"errors"
	"fmt"
	"sort"
)

// Direction selects which side of the cursor a page is fetched from.
type Direction string

// Valid directions. Forward is the default when no direction is supplied.
const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ValidationError is a client-class error for malformed pagination input:
// an undecodable cursor, an unrecognized direction, a bad limit. It is
// never retried and never treated as an internal failure.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("page: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// IsValidation reports whether err is (or wraps) a pagination
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseDirection validates a direction string. The empty string means
// Forward. Anything other than "forward" or "backward" is rejected with
// an error naming the offending value.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Forward, "":
		return Forward, nil
	case Backward:
		return Backward, nil
	default:
		return "", &ValidationError{Field: "direction", Value: s, Reason: `must be "forward" or "backward"`}
	}
}

// Request is the raw pagination input as it arrives from a caller
// (typically HTTP query parameters). Resolve it before use.
type Request struct {
	// Cursor is the opaque token from a previous page, or empty for the
	// first page.
	Cursor string
	// Direction is "forward", "backward", or empty (forward).
	Direction string
	// Limit is the maximum page size. Zero or negative selects the
	// default.
	Limit int
}

// Defaults bounds a resolved request.
type Defaults struct {
	Limit    int
	MaxLimit int
}

// Query is a validated, resolved pagination request ready for a store
// backend to execute.
type Query struct {
	// After is set when walking forward from a cursor: select rows with
	// key strictly greater than After.
	After *Cursor
	// Before is set when walking backward from a cursor: select rows with
	// key strictly less than Before.
	Before *Cursor
	// Limit is the clamped page size, always positive.
	Limit int
	// Direction is the validated walk direction.
	Direction Direction
}

// Resolve validates the request and applies defaults. It returns a
// *ValidationError for an unknown direction or an undecodable cursor.
func (r Request) Resolve(d Defaults) (Query, error) {
	dir, err := ParseDirection(r.Direction)
	if err != nil {
		return Query{}, err
	}

	limit := r.Limit
	if limit <= 0 {
		limit = d.Limit
	}
	if d.MaxLimit > 0 && limit > d.MaxLimit {
		limit = d.MaxLimit
	}

	q := Query{Limit: limit, Direction: dir}

	if r.Cursor != "" {
		c, decErr := DecodeCursor(r.Cursor)
		if decErr != nil {
			return Query{}, decErr
		}
		if dir == Backward {
			q.Before = &c
		} else {
			q.After = &c
		}
	}

	return q, nil
}

// Page is one window of a keyset walk. Items are always in ascending
// (created_at, id) display order regardless of walk direction.
type Page[T any] struct {
	Items []T `json:"items"`
	// HasMore reports whether at least one further item exists beyond
	// this page in the requested direction.
	HasMore bool `json:"has_more"`
	// NextCursor is present iff a forward continuation exists.
	NextCursor string `json:"next_cursor,omitempty"`
	// PrevCursor is present iff a backward continuation exists.
	PrevCursor string `json:"prev_cursor,omitempty"`
}

// Slice paginates an in-memory slice. Items must already be sorted
// ascending by the composite key returned by keyFn. Used by the memory
// store; database backends push the same window arithmetic into queries.
func Slice[T any](items []T, keyFn func(T) Cursor, q Query) Page[T] {
	n := len(items)

	var lo, hi int
	switch q.Direction {
	case Backward:
		hi = n
		if q.Before != nil {
			// First index whose key is >= Before; the window ends there.
			hi = sort.Search(n, func(i int) bool {
				return !keyFn(items[i]).Less(*q.Before)
			})
		}
		lo = hi - q.Limit
		if lo < 0 {
			lo = 0
		}
	default:
		lo = 0
		if q.After != nil {
			// First index whose key is > After; the window starts there.
			lo = sort.Search(n, func(i int) bool {
				return q.After.Less(keyFn(items[i]))
			})
		}
		hi = lo + q.Limit
		if hi > n {
			hi = n
		}
	}

	window := items[lo:hi]

	p := Page[T]{Items: window}
	if q.Direction == Backward {
		p.HasMore = lo > 0
	} else {
		p.HasMore = hi < n
	}

	if len(window) > 0 {
		if hi < n {
			p.NextCursor = keyFn(window[len(window)-1]).Encode()
		}
		if lo > 0 {
			p.PrevCursor = keyFn(window[0]).Encode()
		}
	}

	return p
}

// Build assembles a Page from a window a database backend fetched itself.
// The window must be in ascending display order; moreForward and
// moreBackward report whether rows exist beyond either edge.
func Build[T any](window []T, keyFn func(T) Cursor, dir Direction, moreForward, moreBackward bool) Page[T] {
	p := Page[T]{Items: window}
	if dir == Backward {
		p.HasMore = moreBackward
	} else {
		p.HasMore = moreForward
	}

	if len(window) > 0 {
		if moreForward {
			p.NextCursor = keyFn(window[len(window)-1]).Encode()
		}
		if moreBackward {
			p.PrevCursor = keyFn(window[0]).Encode()
		}
	}

	return p
}
