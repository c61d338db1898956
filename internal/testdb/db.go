package testdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/artcache/internal/platform/postgres"
	"github.com/phrazzld/artcache/internal/redact"
)

// OpenPostgres connects to the test database, migrates it and empties the
// images table. The connection is closed when the test ends.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()

	url := PostgresURL(nil)
	if url == "" {
		if IsCI() {
			t.Fatalf("%s must be set in CI", EnvTestPostgresURL)
		}
		t.Skipf("%s not set", EnvTestPostgresURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, url, nil)
	if err != nil {
		t.Fatalf("connecting to test database %s: %v", redact.URL(url), err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("closing test database: %v", err)
		}
	})

	if _, err := db.ExecContext(ctx, "DELETE FROM images"); err != nil {
		t.Fatalf("emptying images table: %v", err)
	}
	return db
}

// WithTx runs fn inside a transaction that is always rolled back, so fn's
// writes never leak into other tests.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("beginning test transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("rolling back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
