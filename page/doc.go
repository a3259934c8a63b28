// Package page implements opaque-cursor keyset pagination shared by every
// list surface in Bulwark.
//
// A cursor encodes the composite sort key (created_at, id) of a row. The
// key is fixed at row creation and never derived from mutable fields, so
// concurrent inserts and deletes between page fetches cannot duplicate or
// skip rows that existed for the whole walk.
//
// # Cursor
//
// [Cursor] holds a millisecond-precision UTC instant and a TypeID
// tie-breaker. [Cursor.Encode] produces a base64url token; [DecodeCursor]
// reverses it. A malformed token is a [*ValidationError] (client-class); a
// well-formed token referencing a row that has since been deleted is not a
// decode failure; the walk simply resumes from that position.
//
// # Paging
//
// Callers build a [Request] from query parameters and resolve it with
// [Request.Resolve], which validates the direction, clamps the limit, and
// decodes the cursor. Store backends execute the resolved [Query] and
// return a [Page].
//
// Backward pages are returned in the same ascending display order as
// forward pages; only the walk direction differs.
package page
