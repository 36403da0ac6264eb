package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskforge/internal/store"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Migrations holds the SQLite schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Dialect is the store dialect for SQLite. Timestamps are stored as Unix
// nanoseconds so they order and compare as integers.
var Dialect = store.Dialect{
	Name:        "sqlite3",
	Placeholder: store.QuestionPlaceholder,
	MapError:    MapError,
	EncodeTime: func(t time.Time) any {
		return t.UTC().UnixNano()
	},
}

// Open opens the database at dsn. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// One connection avoids SQLITE_BUSY and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dsn, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs a goose command using the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	return store.Migrate(ctx, db, Migrations, Dialect.Name, command, logger)
}

// NewSnapshotStore wraps an already migrated database.
func NewSnapshotStore(db *sql.DB) *store.SQLSnapshotStore {
	return store.NewSQLSnapshotStore(db, Dialect)
}

// OpenSnapshotStore opens dsn, applies pending migrations and returns the store.
func OpenSnapshotStore(ctx context.Context, dsn string, logger *slog.Logger) (*store.SQLSnapshotStore, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, "up", logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSnapshotStore(db), nil
}

// MapError maps SQLite constraint errors onto store errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK,
			sqlite3.SQLITE_CONSTRAINT_NOTNULL,
			sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}
	return err
}
