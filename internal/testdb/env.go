package testdb

import (
	"log/slog"
	"os"

	"github.com/phrazzld/artcache/internal/redact"
)

// Environment variables consulted for the test database, in order of
// preference.
const (
	EnvTestPostgresURL = "ARTCACHE_TEST_POSTGRES_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

// IsCI reports whether the tests run under a CI provider.
func IsCI() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// PostgresURL returns the first configured test database URL, or "" when
// none is set. Using a fallback variable logs a warning.
func PostgresURL(logger *slog.Logger) string {
	names := []string{EnvTestPostgresURL, EnvDatabaseURL}
	for i, name := range names {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if i > 0 && logger != nil {
			logger.Warn("using fallback database variable",
				slog.String("used_var", name),
				slog.String("preferred_var", names[0]),
				slog.String("value", redact.URL(val)))
		}
		return val
	}
	return ""
}
