// Package store is the durable Snippet Store: one SQLite table keyed by slug,
// with a time-to-live per row.
//
// Every read and conditional write only considers live rows (expires_at > now);
// expired rows are invisible and are physically removed by the background
// purge loop (Run). Image list mutations are load-modify-write inside a single
// transaction so concurrent viewers cannot lose each other's attachments.
// Writes retry on SQLITE_BUSY.
package store
