// Package testutils provides shared test helpers: a capturing slog handler,
// SQLite-backed stores on temporary directories, and image fixtures.
package testutils
