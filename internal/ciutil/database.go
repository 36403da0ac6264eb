package ciutil

import (
	"log/slog"
)

// TestDatabaseURL returns the Postgres DSN for integration tests, or "" when
// none is configured.
func TestDatabaseURL(logger *slog.Logger) string {
	dsn := GetEnvWithFallbacks([]string{EnvTestDBURL, EnvDatabaseURL}, "", logger)
	if dsn == "" && logger != nil {
		logger.Info("no test database configured",
			"checked", []string{EnvTestDBURL, EnvDatabaseURL},
			"ci", IsCI())
	}
	return dsn
}
