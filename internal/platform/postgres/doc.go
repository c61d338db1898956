// Package postgres provides the PostgreSQL implementation of store.ImageStore.
// It handles connecting through the pgx database/sql driver, applying the
// embedded schema migrations, and mapping engine errors to store errors.
package postgres
