package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TASKFORGE_SERVER_PORT.
const EnvPrefix = "TASKFORGE"

// ErrInvalidPools is returned when a pools string cannot be parsed.
var ErrInvalidPools = errors.New("invalid pools")

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the file. An empty
// configFile skips file loading.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		StringToPoolsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := task.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")

	v.SetDefault("scheduler.pools", FormatPools(d.Pools))
	v.SetDefault("scheduler.tick_interval", d.TickInterval)
	v.SetDefault("scheduler.max_attempts", d.MaxAttempts)
	v.SetDefault("scheduler.shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("scheduler.shutdown_poll_interval", d.ShutdownPollInterval)
	v.SetDefault("scheduler.heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("scheduler.orphan_policy", string(d.OrphanPolicy))
	v.SetDefault("scheduler.event_buffer", d.EventBuffer)
	v.SetDefault("scheduler.history_size", task.DefaultHistorySize)

	v.SetDefault("metrics.interval", "5s")
	v.SetDefault("metrics.retention", "0s")
	v.SetDefault("metrics.file.path", "")
	v.SetDefault("metrics.file.max_size_mb", 100)
	v.SetDefault("metrics.file.max_backups", 3)
	v.SetDefault("metrics.file.max_age_days", 28)
	v.SetDefault("metrics.file.compress", false)
	v.SetDefault("metrics.store.driver", "")
	v.SetDefault("metrics.store.dsn", "")
}

// ParsePools parses "document=2,ai=1" into a category to worker count map.
func ParsePools(s string) (map[string]int, error) {
	pools := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, count, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not category=count", ErrInvalidPools, part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q needs a positive worker count", ErrInvalidPools, part)
		}
		if _, dup := pools[name]; dup {
			return nil, fmt.Errorf("%w: category %q listed twice", ErrInvalidPools, name)
		}
		pools[name] = n
	}
	return pools, nil
}

// FormatPools is the inverse of ParsePools, with categories sorted by name.
func FormatPools(pools map[string]int) string {
	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+strconv.Itoa(pools[name]))
	}
	return strings.Join(parts, ",")
}

// StringToPoolsHookFunc decodes a pools string into map[string]int.
func StringToPoolsHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(map[string]int{}) {
			return data, nil
		}
		return ParsePools(data.(string))
	}
}
