package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/platform/postgres"
	"github.com/phrazzld/taskforge/internal/platform/sqlite"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/spf13/cobra"
)

var migrationCommands = []string{"up", "down", "reset", "status", "version"}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|reset|status|version]",
		Short: "Run metrics store migrations",
		Long: `Apply or inspect the schema of the SQL metrics store configured under
metrics.store (driver and dsn). The command defaults to "up".`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, logger, err := loadAppConfig(opts)
			if err != nil {
				return err
			}
			return runMigrations(contextOrBackground(cmd.Context()), cfg.Metrics.Store, command, logger)
		},
	}
}

// runMigrations executes a goose command against the configured store.
func runMigrations(ctx context.Context, cfg config.StoreSinkConfig, command string, logger *slog.Logger) error {
	if cfg.Driver == "" {
		return fmt.Errorf("no metrics store configured: set metrics.store.driver and metrics.store.dsn")
	}

	var (
		db      *sql.DB
		err     error
		migrate func(context.Context, *sql.DB, string, *slog.Logger) error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = sqlite.Open(ctx, cfg.DSN)
		migrate = sqlite.Migrate
	case "postgres":
		db, err = postgres.Open(ctx, cfg.DSN)
		migrate = postgres.Migrate
	default:
		return fmt.Errorf("%w: %q", store.ErrUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
	}()

	logger.Info("executing migrations", "driver", cfg.Driver, "command", command)
	if err := migrate(ctx, db, command, logger); err != nil {
		return err
	}
	logger.Info("migrations finished", "driver", cfg.Driver, "command", command)
	return nil
}
