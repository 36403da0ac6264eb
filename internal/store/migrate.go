package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

// MigrationTableName is the goose version table used by every dialect.
const MigrationTableName = "schema_migrations"

// MigrationDir is the directory inside the embedded filesystem that holds the SQL files.
const MigrationDir = "migrations"

// ErrUnknownMigrationCommand is returned for commands other than up, down, reset, status and version.
var ErrUnknownMigrationCommand = errors.New("unknown migration command")

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// slogGooseLogger adapts goose's logger interface to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf logs at error level. goose's default implementation exits the process.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate runs a goose command against db using the SQL files embedded in fsys.
// dialect is a goose dialect name such as "postgres" or "sqlite3".
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, dialect, command string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "migrations", "command", command, "dialect", dialect)

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedDriver, dialect, err)
	}

	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, db, MigrationDir)
	case "down":
		err = goose.DownContext(ctx, db, MigrationDir)
	case "reset":
		err = goose.ResetContext(ctx, db, MigrationDir)
	case "status":
		err = goose.StatusContext(ctx, db, MigrationDir)
	case "version":
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db)
		if err == nil {
			log.Info("current migration version", "version", version)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMigrationCommand, command)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	log.Debug("migration command finished")
	return nil
}
