package config

import (
	"time"

	"github.com/phrazzld/taskforge/internal/task"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   validate:"required"`
}

// ServerConfig contains the HTTP server and logging settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile, when set, receives a rotated copy of the JSON log stream.
	LogFile string `mapstructure:"log_file"`
}

// SchedulerConfig mirrors task.Config with validation rules.
type SchedulerConfig struct {
	// Pools maps a category to its worker count. From the environment it is
	// written as "document=2,ai=1".
	Pools                map[string]int `mapstructure:"pools"                  validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
	TickInterval         time.Duration  `mapstructure:"tick_interval"          validate:"gt=0"`
	MaxAttempts          int            `mapstructure:"max_attempts"           validate:"gte=1"`
	ShutdownTimeout      time.Duration  `mapstructure:"shutdown_timeout"       validate:"gt=0"`
	ShutdownPollInterval time.Duration  `mapstructure:"shutdown_poll_interval" validate:"gt=0"`
	HeartbeatInterval    time.Duration  `mapstructure:"heartbeat_interval"     validate:"gt=0"`
	OrphanPolicy         string         `mapstructure:"orphan_policy"          validate:"required,oneof=fail requeue drop"`
	EventBuffer          int            `mapstructure:"event_buffer"           validate:"gt=0"`
	HistorySize          int            `mapstructure:"history_size"           validate:"gt=0"`
}

// MetricsConfig configures the metrics reporter and its sinks.
type MetricsConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	// Retention prunes stored snapshots older than this. Zero keeps everything.
	Retention time.Duration   `mapstructure:"retention" validate:"gte=0"`
	File      FileSinkConfig  `mapstructure:"file"`
	Store     StoreSinkConfig `mapstructure:"store"`
}

// FileSinkConfig configures the rotating JSON-lines file sink. An empty
// Path disables it.
type FileSinkConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups"  validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// StoreSinkConfig configures the SQL snapshot store. An empty Driver
// disables it.
type StoreSinkConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn"    validate:"required_with=Driver"`
}

// TaskConfig converts the scheduler section into a task.Config.
func (c SchedulerConfig) TaskConfig() task.Config {
	pools := make(map[string]int, len(c.Pools))
	for category, n := range c.Pools {
		pools[category] = n
	}
	return task.Config{
		Pools:                pools,
		TickInterval:         c.TickInterval,
		MaxAttempts:          c.MaxAttempts,
		ShutdownTimeout:      c.ShutdownTimeout,
		ShutdownPollInterval: c.ShutdownPollInterval,
		HeartbeatInterval:    c.HeartbeatInterval,
		OrphanPolicy:         task.OrphanPolicy(c.OrphanPolicy),
		EventBuffer:          c.EventBuffer,
	}
}
