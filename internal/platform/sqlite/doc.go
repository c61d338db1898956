// Package sqlite implements the store.ImageStore contract on an embedded,
// transactional SQLite database using the pure-Go modernc.org/sqlite driver.
//
// The schema is managed with goose migrations embedded in the binary. A
// schema version bump recreates the images table: every cached payload can be
// fetched or derived again, so no data conversion is attempted.
package sqlite
