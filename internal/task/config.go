package task

import (
	"fmt"
	"runtime"
	"time"
)

// OrphanPolicy decides what happens to a task whose worker crashed mid-execution.
type OrphanPolicy string

const (
	// OrphanFail marks the task failed with ErrWorkerCrashed.
	OrphanFail OrphanPolicy = "fail"
	// OrphanRequeue puts the task back at the end of its band without
	// counting an attempt.
	OrphanRequeue OrphanPolicy = "requeue"
	// OrphanDrop forgets the task; only a log line records it.
	OrphanDrop OrphanPolicy = "drop"
)

// Built-in category names used by DefaultPools.
const (
	CategoryDocument = "document"
	CategoryAI       = "ai"
	CategoryDatabase = "database"
	CategoryGeneral  = DefaultCategory
)

// Config holds configuration for the Scheduler
type Config struct {
	// Pools maps a category to the number of workers serving it
	Pools map[string]int

	// TickInterval is how often queued tasks are scanned and crashed
	// workers are replaced
	TickInterval time.Duration

	// MaxAttempts is the total number of executions allowed per task
	MaxAttempts int

	// ShutdownTimeout bounds how long Shutdown waits for busy workers
	ShutdownTimeout time.Duration

	// ShutdownPollInterval is how often the registry is polled while draining
	ShutdownPollInterval time.Duration

	// HeartbeatInterval is how often idle workers report liveness
	HeartbeatInterval time.Duration

	// OrphanPolicy applies to the in-flight task of a crashed worker
	OrphanPolicy OrphanPolicy

	// EventBuffer is the soft limit of the outbound event queue. The queue
	// never blocks the loop; a deeper queue is logged as a warning.
	EventBuffer int
}

// DefaultPools returns the four built-in categories sized by the available
// parallelism.
func DefaultPools() map[string]int {
	size := runtime.NumCPU() / 4
	if size < 1 {
		size = 1
	}
	return map[string]int{
		CategoryDocument: size,
		CategoryAI:       size,
		CategoryDatabase: size,
		CategoryGeneral:  size,
	}
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Pools:                DefaultPools(),
		TickInterval:         100 * time.Millisecond,
		MaxAttempts:          3,
		ShutdownTimeout:      30 * time.Second,
		ShutdownPollInterval: 100 * time.Millisecond,
		HeartbeatInterval:    time.Second,
		OrphanPolicy:         OrphanFail,
		EventBuffer:          1024,
	}
}

// withDefaults replaces zero values with the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Pools) == 0 {
		c.Pools = d.Pools
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ShutdownPollInterval <= 0 {
		c.ShutdownPollInterval = d.ShutdownPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.OrphanPolicy == "" {
		c.OrphanPolicy = d.OrphanPolicy
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

func (c Config) validate() error {
	for category, size := range c.Pools {
		if category == "" {
			return fmt.Errorf("pool with empty category name")
		}
		if size <= 0 {
			return fmt.Errorf("pool %q: worker count must be positive, got %d", category, size)
		}
	}
	switch c.OrphanPolicy {
	case OrphanFail, OrphanRequeue, OrphanDrop:
	default:
		return fmt.Errorf("unknown orphan policy %q", c.OrphanPolicy)
	}
	return nil
}
