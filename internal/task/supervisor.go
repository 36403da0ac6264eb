package task

import "time"

// onCrash handles a worker that panicked or exited without being told to.
// The worker is marked unreachable here and replaced on the next supervisor
// cycle.
func (s *Scheduler) onCrash(rec *workerRecord, msg message) {
	if rec.status == WorkerUnreachable {
		return
	}
	orphanID := s.workers.markUnreachable(rec.id)

	s.logger.Error("worker crashed",
		"worker_id", rec.id,
		"category", rec.category,
		"reason", msg.kind.String(),
		"task_id", orphanID,
		"error", msg.err)

	if orphanID != "" {
		s.handleOrphan(rec, orphanID, msg)
	}
	if s.Phase() == PhaseDraining {
		s.checkDrain()
	}
}

// handleOrphan applies the configured OrphanPolicy to the task a crashed
// worker was running.
func (s *Scheduler) handleOrphan(rec *workerRecord, taskID string, msg message) {
	t := s.tasks[taskID]
	if t == nil {
		return
	}

	switch s.config.OrphanPolicy {
	case OrphanRequeue:
		t.State = StateQueued
		t.WorkerID = ""
		t.StartedAt = time.Time{}
		s.queues.push(t)
		s.logger.Warn("requeued orphaned task",
			"task_id", t.ID,
			"worker_id", rec.id,
			"priority", t.Priority)

	case OrphanDrop:
		delete(s.tasks, t.ID)
		s.counts.dropped++
		s.logger.Warn("dropped orphaned task",
			"task_id", t.ID,
			"worker_id", rec.id,
			"category", t.Category)

	default:
		// The crashed run counts as a failed execution.
		t.Attempts++
		s.fail(t, &ExecutionError{TaskID: t.ID, Attempt: t.Attempts, Err: msg.err}, msg.at)
	}
}

// supervise removes every unreachable worker and spawns a same-category
// replacement, keeping each pool at its configured size.
func (s *Scheduler) supervise() {
	if s.Phase() == PhaseTerminated {
		return
	}

	var dead []*workerRecord
	s.workers.each(func(rec *workerRecord) {
		if rec.status == WorkerUnreachable {
			dead = append(dead, rec)
		}
	})

	for _, rec := range dead {
		s.workers.remove(rec.id)
		rec.handle.terminate()
		replacement := s.spawn(rec.category)
		s.logger.Info("replaced crashed worker",
			"worker_id", rec.id,
			"replacement_id", replacement.id,
			"category", rec.category,
			"pool_size", s.workers.countByCategory(rec.category))
	}
}
