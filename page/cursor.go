package page

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/bulwark/id"
)

// cursorSep separates the timestamp and tie-break components inside the
// decoded token.
const cursorSep = "|"

// Cursor is the composite keyset position (created_at, id) of a row.
// Timestamps are millisecond-precision UTC; the TypeID breaks ties when
// two rows share a timestamp.
type Cursor struct {
	At time.Time
	ID id.ID
}

// Encode serializes the cursor into an opaque URL-safe token.
// Encoding truncates the timestamp to millisecond precision, matching the
// precision rows are stored with.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.At.UnixMilli(), 10) + cursorSep + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor token back into a Cursor.
// Every failure mode returns a *ValidationError: cursors come from
// clients, and a garbled token is a client mistake, never an internal
// error.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, &ValidationError{Field: "cursor", Value: token, Reason: "not valid base64url"}
	}

	millis, tieBreak, found := strings.Cut(string(raw), cursorSep)
	if !found {
		return Cursor{}, &ValidationError{Field: "cursor", Value: token, Reason: "missing separator"}
	}

	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return Cursor{}, &ValidationError{Field: "cursor", Value: token, Reason: "timestamp is not an integer"}
	}

	tid, err := id.Parse(tieBreak)
	if err != nil {
		return Cursor{}, &ValidationError{Field: "cursor", Value: token, Reason: fmt.Sprintf("bad tie-break id: %v", err)}
	}

	return Cursor{At: time.UnixMilli(ms).UTC(), ID: tid}, nil
}

// Less reports whether c sorts strictly before other in the composite
// (At, ID) order.
func (c Cursor) Less(other Cursor) bool {
	if !c.At.Equal(other.At) {
		return c.At.Before(other.At)
	}
	return c.ID.String() < other.ID.String()
}

// Equal reports whether both components match.
func (c Cursor) Equal(other Cursor) bool {
	return c.At.Equal(other.At) && c.ID.String() == other.ID.String()
}
