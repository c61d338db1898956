// Package testdb provides helpers for tests that need a real PostgreSQL
// database.
//
// Tests call OpenPostgres, which skips when no database URL is configured
// and fails instead when running under CI, where a database is expected:
//
//	func TestSomething(t *testing.T) {
//		db := testdb.OpenPostgres(t)
//		testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//			// changes are rolled back afterwards
//		})
//	}
//
// The database URL is read from ARTCACHE_TEST_POSTGRES_URL, falling back to
// DATABASE_URL.
package testdb
