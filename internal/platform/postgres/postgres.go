package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/phrazzld/taskforge/internal/store"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// Migrations holds the PostgreSQL schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Dialect is the store dialect for PostgreSQL.
var Dialect = store.Dialect{
	Name:        "postgres",
	Placeholder: store.DollarPlaceholder,
	MapError:    MapError,
}

// Open opens a pooled connection to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("database ping timed out after 5s: %w", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, fmt.Errorf("network error connecting to database: %w", err)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
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

// OpenSnapshotStore opens dsn and returns the store. Migrations are applied
// separately with `server migrate up`.
func OpenSnapshotStore(ctx context.Context, dsn string) (*store.SQLSnapshotStore, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewSnapshotStore(db), nil
}
