package task

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/taskforge/internal/events"
)

// Shutdown stops accepting tasks and waits for busy workers to finish, up
// to Config.ShutdownTimeout. Queued tasks are never started; they end up
// cancelled. ErrDrainTimeout reports that running tasks had to be abandoned.
//
// If ctx ends first the scheduler terminates immediately and ctx.Err() is
// returned. Shutdown may be called more than once.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if s.Phase() == PhaseIdle {
		return ErrSchedulerNotStarted
	}

	// Stop accepting work. A loop that already stopped is fine.
	if err := s.call(ctx, s.beginDrain); err != nil && !errors.Is(err, errLoopStopped) {
		return err
	}

	// Wait for the drain to finish on its own
	select {
	case <-s.done:
		return s.drainErr
	case <-ctx.Done():
		// Caller gave up, cancel whatever is still running
		_ = s.call(context.Background(), func() { s.terminate(true) })
		<-s.done
		return ctx.Err()
	}
}

// beginDrain moves a running scheduler to draining.
func (s *Scheduler) beginDrain() {
	if s.Phase() != PhaseRunning {
		return
	}
	s.phase.Store(int32(PhaseDraining))
	s.drainDeadline = time.Now().Add(s.config.ShutdownTimeout)
	s.drainTicker = time.NewTicker(s.config.ShutdownPollInterval)

	s.logger.Info("draining scheduler",
		"busy_workers", s.workers.busyCount(),
		"queued_tasks", s.queues.depths().Total(),
		"timeout", s.config.ShutdownTimeout)
	s.checkDrain()
}

// drainC is the drain poll channel, or nil when not draining.
func (s *Scheduler) drainC() <-chan time.Time {
	if s.drainTicker == nil {
		return nil
	}
	return s.drainTicker.C
}

// checkDrain terminates once no worker is busy or the deadline has passed.
func (s *Scheduler) checkDrain() {
	if s.Phase() != PhaseDraining {
		return
	}
	busy := s.workers.busyCount()
	if busy == 0 {
		s.terminate(false)
		return
	}
	if !time.Now().Before(s.drainDeadline) {
		s.logger.Warn("shutdown timeout elapsed with busy workers",
			"busy_workers", busy,
			"timeout", s.config.ShutdownTimeout)
		s.terminate(true)
	}
}

// terminate signals every worker to stop and settles all remaining tasks.
// With force set, tasks still running are cancelled too.
func (s *Scheduler) terminate(force bool) {
	if s.Phase() == PhaseTerminated {
		return
	}
	if s.drainTicker != nil {
		s.drainTicker.Stop()
		s.drainTicker = nil
	}
	// Tell every worker to exit
	s.cancel()

	// Queued tasks never start
	now := time.Now()
	for _, t := range s.queues.drainAll() {
		s.cancelTask(t, "scheduler shut down before the task started", now)
	}

	// Running tasks are abandoned only when forced
	if force {
		abandoned := 0
		s.workers.each(func(rec *workerRecord) {
			if rec.status != WorkerBusy {
				return
			}
			if t := s.tasks[rec.currentTaskID]; t != nil {
				s.cancelTask(t, ErrDrainTimeout.Error(), now)
				abandoned++
			}
		})
		if abandoned > 0 {
			s.drainErr = ErrDrainTimeout
		}
	}

	s.phase.Store(int32(PhaseTerminated))
}

func (s *Scheduler) cancelTask(t *Task, reason string, at time.Time) {
	t.State = StateCancelled
	t.Error = reason
	t.CompletedAt = at
	s.counts.cancelled++
	delete(s.tasks, t.ID)

	s.logger.Info("task cancelled",
		"task_id", t.ID,
		"category", t.Category,
		"reason", reason)
	s.emit(events.TypeTaskCancelled, t)
}
