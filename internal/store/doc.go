// Package store defines the persistence contract for durable image records.
// The ImageStore interface abstracts the underlying engine (embedded SQLite,
// PostgreSQL) from the cache service, which layers handle issuance on top.
package store
