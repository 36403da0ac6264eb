package task

import (
	"fmt"
	"time"
)

// WorkerStatus is the dispatcher's view of a worker
type WorkerStatus string

// Possible worker status values
const (
	WorkerIdle        WorkerStatus = "idle"
	WorkerBusy        WorkerStatus = "busy"
	WorkerUnreachable WorkerStatus = "unreachable"
)

// workerRecord is the registry entry for one worker. Only the dispatcher
// loop reads or writes it.
type workerRecord struct {
	id             string
	category       string
	status         WorkerStatus
	currentTaskID  string
	completedCount int
	startedAt      time.Time
	lastHeartbeat  time.Time
	handle         *worker
}

// registry keeps every worker together with its category and occupancy.
// Insertion order is preserved for stable load-balancing tie-breaks.
type registry struct {
	records map[string]*workerRecord
	order   []string
}

func newRegistry() *registry {
	return &registry{records: make(map[string]*workerRecord)}
}

func (r *registry) add(rec *workerRecord) {
	r.records[rec.id] = rec
	r.order = append(r.order, rec.id)
}

func (r *registry) remove(id string) {
	if _, ok := r.records[id]; !ok {
		return
	}
	delete(r.records, id)
	for i, wid := range r.order {
		if wid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *registry) get(id string) *workerRecord {
	return r.records[id]
}

// each visits workers in insertion order.
func (r *registry) each(fn func(rec *workerRecord)) {
	for _, id := range r.order {
		fn(r.records[id])
	}
}

// selectWorker returns the idle worker of the category with the fewest
// completed tasks, or nil when none is idle. Ties go to the earliest inserted
// worker. It has no side effects.
func (r *registry) selectWorker(category string) *workerRecord {
	var best *workerRecord
	for _, id := range r.order {
		rec := r.records[id]
		if rec.category != category || rec.status != WorkerIdle {
			continue
		}
		if best == nil || rec.completedCount < best.completedCount {
			best = rec
		}
	}
	return best
}

// markBusy records that the worker is running taskID.
func (r *registry) markBusy(workerID, taskID string) error {
	rec := r.records[workerID]
	if rec == nil {
		return fmt.Errorf("mark busy: unknown worker %s", workerID)
	}
	if rec.status != WorkerIdle {
		return fmt.Errorf("mark busy: worker %s is %s", workerID, rec.status)
	}
	rec.status = WorkerBusy
	rec.currentTaskID = taskID
	return nil
}

// markIdle releases the worker's current task.
func (r *registry) markIdle(workerID string) {
	rec := r.records[workerID]
	if rec == nil || rec.status == WorkerUnreachable {
		return
	}
	rec.status = WorkerIdle
	rec.currentTaskID = ""
}

// markUnreachable flags a failed worker for replacement and returns the task
// it was running, if any.
func (r *registry) markUnreachable(workerID string) string {
	rec := r.records[workerID]
	if rec == nil {
		return ""
	}
	orphan := rec.currentTaskID
	rec.status = WorkerUnreachable
	rec.currentTaskID = ""
	return orphan
}

func (r *registry) busyCount() int {
	n := 0
	for _, rec := range r.records {
		if rec.status == WorkerBusy {
			n++
		}
	}
	return n
}

func (r *registry) countByCategory(category string) int {
	n := 0
	for _, rec := range r.records {
		if rec.category == category {
			n++
		}
	}
	return n
}

// WorkerInfo is a read-only copy of a registry entry
type WorkerInfo struct {
	ID             string       `json:"id"`
	Category       string       `json:"category"`
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	CompletedCount int          `json:"completed_count"`
	StartedAt      time.Time    `json:"started_at"`
	LastHeartbeat  time.Time    `json:"last_heartbeat,omitempty"`
}

func (r *registry) snapshot() []WorkerInfo {
	out := make([]WorkerInfo, 0, len(r.order))
	r.each(func(rec *workerRecord) {
		out = append(out, WorkerInfo{
			ID:             rec.id,
			Category:       rec.category,
			Status:         rec.status,
			CurrentTaskID:  rec.currentTaskID,
			CompletedCount: rec.completedCount,
			StartedAt:      rec.startedAt,
			LastHeartbeat:  rec.lastHeartbeat,
		})
	})
	return out
}
