package metrics

import (
	"runtime"
	"time"

	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
)

// ProcessStats is the resource usage of the running process.
type ProcessStats struct {
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	SysBytes       uint64  `json:"sys_bytes"`
	NumGC          uint32  `json:"num_gc"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// ReadProcessStats samples the Go runtime. start is the process or
// reporter start time used for uptime.
func ReadProcessStats(start time.Time, now time.Time) ProcessStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return ProcessStats{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
		NumGC:          mem.NumGC,
		UptimeSeconds:  now.Sub(start).Seconds(),
	}
}

// Snapshot is one metrics report. It is the payload of metrics.snapshot events.
type Snapshot struct {
	TakenAt time.Time         `json:"taken_at"`
	Phase   string            `json:"phase"`
	Workers task.WorkerCounts `json:"workers"`
	Queues  task.QueueDepths  `json:"queues"`
	Tasks   task.TaskCounts   `json:"tasks"`
	Process ProcessStats      `json:"process"`
}

// NewSnapshot combines a scheduler status with process stats.
func NewSnapshot(status task.Status, process ProcessStats, at time.Time) Snapshot {
	return Snapshot{
		TakenAt: at.UTC(),
		Phase:   status.Phase.String(),
		Workers: status.WorkerCounts(),
		Queues:  status.Queues,
		Tasks:   status.Tasks,
		Process: process,
	}
}

// Record flattens the snapshot into its stored form.
func (s Snapshot) Record() *store.MetricsSnapshot {
	byCategory := make(map[string]int, len(s.Workers.ByCategory))
	for category, n := range s.Workers.ByCategory {
		byCategory[category] = n
	}
	return &store.MetricsSnapshot{
		TakenAt:            s.TakenAt,
		Phase:              s.Phase,
		WorkersTotal:       s.Workers.Total,
		WorkersIdle:        s.Workers.Idle,
		WorkersBusy:        s.Workers.Busy,
		WorkersUnreachable: s.Workers.Unreachable,
		WorkersByCategory:  byCategory,
		QueueHigh:          s.Queues.High,
		QueueNormal:        s.Queues.Normal,
		QueueLow:           s.Queues.Low,
		QueueScheduled:     s.Queues.Scheduled,
		TasksTotal:         s.Tasks.Total,
		TasksCompleted:     s.Tasks.Completed,
		TasksFailed:        s.Tasks.Failed,
		TasksCancelled:     s.Tasks.Cancelled,
		TasksDropped:       s.Tasks.Dropped,
		TasksQueued:        s.Tasks.Queued,
		TasksRunning:       s.Tasks.Running,
		Goroutines:         s.Process.Goroutines,
		HeapAllocBytes:     s.Process.HeapAllocBytes,
		SysBytes:           s.Process.SysBytes,
		NumGC:              s.Process.NumGC,
		UptimeSeconds:      s.Process.UptimeSeconds,
	}
}

// FromRecord rebuilds a Snapshot from its stored form.
func FromRecord(r *store.MetricsSnapshot) Snapshot {
	s := Snapshot{
		TakenAt: r.TakenAt,
		Phase:   r.Phase,
		Workers: task.WorkerCounts{
			Total:       r.WorkersTotal,
			Idle:        r.WorkersIdle,
			Busy:        r.WorkersBusy,
			Unreachable: r.WorkersUnreachable,
			ByCategory:  make(map[string]int, len(r.WorkersByCategory)),
		},
		Queues: task.QueueDepths{
			High:      r.QueueHigh,
			Normal:    r.QueueNormal,
			Low:       r.QueueLow,
			Scheduled: r.QueueScheduled,
		},
		Tasks: task.TaskCounts{
			Total:     r.TasksTotal,
			Completed: r.TasksCompleted,
			Failed:    r.TasksFailed,
			Cancelled: r.TasksCancelled,
			Dropped:   r.TasksDropped,
			Queued:    r.TasksQueued,
			Running:   r.TasksRunning,
		},
		Process: ProcessStats{
			Goroutines:     r.Goroutines,
			HeapAllocBytes: r.HeapAllocBytes,
			SysBytes:       r.SysBytes,
			NumGC:          r.NumGC,
			UptimeSeconds:  r.UptimeSeconds,
		},
	}
	for category, n := range r.WorkersByCategory {
		s.Workers.ByCategory[category] = n
	}
	return s
}
