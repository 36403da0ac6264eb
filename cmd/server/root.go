package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run and inspect the taskforge task scheduler",
		Long: `server runs the taskforge scheduler behind an HTTP API.

Configuration comes from an optional file (--config) and TASKFORGE_*
environment variables, e.g. TASKFORGE_SCHEDULER_POOLS="document=2,ai=1".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML, JSON or TOML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newStatusCmd(),
	)
	return cmd
}

// loadAppConfig loads the configuration and sets up the logger from it.
func loadAppConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"pools", config.FormatPools(cfg.Scheduler.Pools),
		"orphan_policy", cfg.Scheduler.OrphanPolicy)
	if cfg.Metrics.Store.Driver != "" {
		l.Debug("metrics store configured", "driver", cfg.Metrics.Store.Driver, "dsn_present", true)
	}
	return cfg, l, nil
}
