package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/taskforge/internal/ciutil"
	"github.com/phrazzld/taskforge/internal/platform/postgres"
	"github.com/phrazzld/taskforge/internal/redact"
)

// setupTimeout bounds connecting and migrating.
const setupTimeout = 30 * time.Second

// DatabaseURL returns the configured test DSN. It skips the test when none
// is set, except under CI where it fails.
func DatabaseURL(t testing.TB) string {
	t.Helper()
	dsn := ciutil.TestDatabaseURL(nil)
	if dsn != "" {
		return dsn
	}
	if ciutil.IsCI() {
		t.Fatalf("no test database in CI: set %s", ciutil.EnvTestDBURL)
	}
	t.Skipf("%s not set", ciutil.EnvTestDBURL)
	return ""
}

// Open connects to the test database and resets its schema to the latest
// migration. The connection is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := DatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open test database: %s", redact.Error(err))
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test database: %v", err)
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, command := range []string{"reset", "up"} {
		if err := postgres.Migrate(ctx, db, command, logger); err != nil {
			t.Fatalf("migrate %s: %v", command, err)
		}
	}
	return db
}
