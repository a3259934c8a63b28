// Package postgres implements the bulwark store on PostgreSQL using
// pgx/v5.
//
// Entries live in a single bulwark_dlq table indexed on
// (created_at, id) so keyset pagination and age-based pruning are both
// index walks. Pruning deletes in bounded batches via a subquery so a
// large sweep never holds a long-running lock against concurrent
// readers.
package postgres
