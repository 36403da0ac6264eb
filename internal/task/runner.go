package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskforge/internal/events"
)

// Phase is the lifecycle phase of a Scheduler
type Phase int32

// Scheduler phases, in the only order they can occur
const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseIdle, PhaseRunning, PhaseDraining, PhaseTerminated} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown scheduler phase %q", text)
}

// counters accumulates task outcomes over the scheduler's lifetime.
type counters struct {
	total     int
	completed int
	failed    int
	cancelled int
	dropped   int
}

// Scheduler accepts tasks, queues them by priority and dispatches them to
// per-category worker pools.
//
// A single loop goroutine owns the worker registry, the priority bands and
// every live task. Public methods hand closures to that loop and wait for
// the result, so no state is shared under locks.
type Scheduler struct {
	config   Config
	handlers map[string]Handler
	logger   *slog.Logger
	outbox   *events.AsyncEmitter

	phase  atomic.Int32
	msgCh  chan message
	opCh   chan func()
	done   chan struct{}
	// exited is closed when the loop stops serving calls, before the
	// outbox is flushed and done is closed.
	exited chan struct{}

	// ctx is the parent of every worker context; cancelling it is the
	// terminate signal.
	ctx      context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup

	// Owned by the loop goroutine.
	workers       *registry
	queues        *queueSet
	tasks         map[string]*Task
	counts        counters
	drainDeadline time.Time
	drainTicker   *time.Ticker

	// Written by the loop before exited is closed.
	drainErr error
	final    Status
}

// New creates a Scheduler. Every configured pool needs a handler.
// A nil emitter discards events.
func New(cfg Config, handlers Handlers, emitter events.EventEmitter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Fill in zero values before validating
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	// Every pool needs a handler
	resolved, err := handlers.resolve(cfg.Pools)
	if err != nil {
		return nil, err
	}

	logger = logger.With("component", "scheduler")
	if emitter == nil {
		emitter = events.NewInMemoryEventEmitter(logger)
	}

	// Size the message channel for a burst from every worker
	workerCount := 0
	for _, size := range cfg.Pools {
		workerCount += size
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:   cfg,
		handlers: resolved,
		logger:   logger,
		outbox:   events.NewAsyncEmitter(emitter, cfg.EventBuffer, logger),
		msgCh:    make(chan message, 2*workerCount+16),
		opCh:     make(chan func()),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		workers:  newRegistry(),
		queues:   newQueueSet(),
		tasks:    make(map[string]*Task),
	}, nil
}

// Start spawns the worker pools and the dispatcher loop.
func (s *Scheduler) Start() error {
	if !s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseRunning)) {
		return fmt.Errorf("scheduler already started (phase %s)", s.Phase())
	}

	// Spawn the pools in a stable order so worker IDs are reproducible
	for _, category := range sortedCategories(s.config.Pools) {
		for i := 0; i < s.config.Pools[category]; i++ {
			s.spawn(category)
		}
	}

	s.logger.Info("scheduler started",
		"workers", len(s.workers.order),
		"pools", len(s.config.Pools),
		"tick_interval", s.config.TickInterval)

	// Start the dispatcher loop
	go s.loop()
	return nil
}

// Phase returns the current lifecycle phase.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Done is closed once the scheduler has terminated.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Submit accepts a single task and returns its ID.
func (s *Scheduler) Submit(ctx context.Context, req Request) (string, error) {
	normalized, err := s.prepare(req)
	if err != nil {
		return "", err
	}
	ids, err := s.enqueue(ctx, []Request{normalized})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SubmitBatch accepts several tasks at once. The batch is validated as a
// whole: either every request is accepted or none is.
func (s *Scheduler) SubmitBatch(ctx context.Context, reqs []Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	normalized := make([]Request, len(reqs))
	for i, req := range reqs {
		n, err := s.prepare(req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		normalized[i] = n
	}
	return s.enqueue(ctx, normalized)
}

// Status returns a copy of the scheduler's current state.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	if s.Phase() == PhaseIdle {
		return Status{}, ErrSchedulerNotStarted
	}
	var st Status
	err := s.call(ctx, func() { st = s.snapshot() })
	if errors.Is(err, errLoopStopped) {
		return s.final, nil
	}
	return st, err
}

// Lookup returns a copy of a live (queued, assigned or running) task.
// Finished tasks are reported through events only.
func (s *Scheduler) Lookup(ctx context.Context, id string) (Task, bool, error) {
	if s.Phase() == PhaseIdle {
		return Task{}, false, ErrSchedulerNotStarted
	}
	var (
		found Task
		ok    bool
	)
	err := s.call(ctx, func() {
		if t := s.tasks[id]; t != nil {
			found, ok = *t, true
		}
	})
	if errors.Is(err, errLoopStopped) {
		return Task{}, false, nil
	}
	return found, ok, err
}

// prepare applies defaults and checks the request against the configured
// pools.
func (s *Scheduler) prepare(req Request) (Request, error) {
	n, err := req.normalize()
	if err != nil {
		return Request{}, err
	}
	if _, ok := s.config.Pools[n.Category]; !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownCategory, n.Category)
	}
	return n, nil
}

func (s *Scheduler) enqueue(ctx context.Context, reqs []Request) ([]string, error) {
	if err := s.accepting(); err != nil {
		return nil, err
	}
	var (
		ids       []string
		acceptErr error
	)
	err := s.call(ctx, func() { ids, acceptErr = s.accept(reqs) })
	if errors.Is(err, errLoopStopped) {
		return nil, ErrSchedulerShuttingDown
	}
	if err != nil {
		return nil, err
	}
	return ids, acceptErr
}

// accepting fails fast when the scheduler cannot take new work.
func (s *Scheduler) accepting() error {
	switch s.Phase() {
	case PhaseIdle:
		return ErrSchedulerNotStarted
	case PhaseRunning:
		return nil
	default:
		return ErrSchedulerShuttingDown
	}
}

// call runs fn on the loop goroutine and waits for it to finish.
func (s *Scheduler) call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	op := func() {
		defer close(ran)
		fn()
	}
	select {
	case s.opCh <- op:
	case <-s.exited:
		return errLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for s.Phase() != PhaseTerminated {
		select {
		case op := <-s.opCh:
			op()
		case msg := <-s.msgCh:
			s.handleMessage(msg)
		case <-ticker.C:
			s.supervise()
			s.dispatchQueued()
		case <-s.drainC():
			s.checkDrain()
		}
	}
	s.finish()
}

// accept creates tasks for already validated requests. Each task goes
// straight to an idle worker of its category when one exists.
func (s *Scheduler) accept(reqs []Request) ([]string, error) {
	if s.Phase() != PhaseRunning {
		return nil, ErrSchedulerShuttingDown
	}
	now := time.Now()
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		t := newTask(req, now)
		s.tasks[t.ID] = t
		s.counts.total++
		ids = append(ids, t.ID)

		// Try an idle worker first
		if rec := s.workers.selectWorker(t.Category); rec != nil && s.dispatch(t, rec) {
			continue
		}

		// No worker free, wait in the priority band
		s.queues.push(t)
		s.logger.Debug("task queued",
			"task_id", t.ID,
			"category", t.Category,
			"priority", t.Priority)
	}
	return ids, nil
}

// dispatchQueued scans the bands from highest to lowest priority and hands
// queued tasks to idle workers. A band stops at the first head task whose
// category has no idle worker.
func (s *Scheduler) dispatchQueued() {
	if s.Phase() != PhaseRunning {
		return
	}
	for _, p := range bandOrder {
		b := s.queues.band(p)
		for b.len() > 0 {
			head := b.peek()
			rec := s.workers.selectWorker(head.Category)
			if rec == nil {
				// Head of line blocks the band
				break
			}
			if !s.dispatch(head, rec) {
				// Worker was marked unreachable, try the next one
				continue
			}
			b.pop()
		}
	}
}

// dispatch hands t to the worker and marks both as assigned.
func (s *Scheduler) dispatch(t *Task, rec *workerRecord) bool {
	if err := s.workers.markBusy(rec.id, t.ID); err != nil {
		s.logger.Error("failed to reserve worker", "error", err, "task_id", t.ID)
		return false
	}
	if !rec.handle.assign(assignment{taskID: t.ID, payload: t.Payload}) {
		// The worker never consumed its previous assignment.
		s.workers.markUnreachable(rec.id)
		s.logger.Warn("worker not accepting assignments",
			"worker_id", rec.id,
			"category", rec.category,
			"task_id", t.ID)
		return false
	}
	t.State = StateAssigned
	t.WorkerID = rec.id
	s.logger.Debug("task assigned",
		"task_id", t.ID,
		"worker_id", rec.id,
		"category", t.Category,
		"priority", t.Priority,
		"attempt", t.Attempts+1)
	return true
}

func (s *Scheduler) handleMessage(msg message) {
	rec := s.workers.get(msg.workerID)
	if rec == nil {
		s.logger.Debug("message from removed worker",
			"worker_id", msg.workerID,
			"kind", msg.kind.String())
		return
	}

	switch msg.kind {
	case msgHeartbeat:
		rec.lastHeartbeat = msg.at
	case msgStarted:
		rec.lastHeartbeat = msg.at
		if t := s.current(rec, msg); t != nil {
			t.State = StateRunning
			t.StartedAt = msg.at
		}
	case msgCompleted:
		s.onCompleted(rec, msg)
	case msgErrored:
		s.onErrored(rec, msg)
	case msgCrashed, msgExited:
		s.onCrash(rec, msg)
	}
}

// current returns the task the message refers to if the worker is still
// recorded as running it.
func (s *Scheduler) current(rec *workerRecord, msg message) *Task {
	if rec.status != WorkerBusy || rec.currentTaskID != msg.taskID {
		s.logger.Warn("stale worker message",
			"worker_id", rec.id,
			"task_id", msg.taskID,
			"kind", msg.kind.String(),
			"worker_status", rec.status)
		return nil
	}
	return s.tasks[msg.taskID]
}

func (s *Scheduler) onCompleted(rec *workerRecord, msg message) {
	t := s.current(rec, msg)
	if t == nil {
		return
	}
	// Release the worker first
	rec.completedCount++
	rec.lastHeartbeat = msg.at
	s.workers.markIdle(rec.id)

	// Then settle the task
	t.State = StateCompleted
	t.Result = msg.result
	t.Error = ""
	t.CompletedAt = msg.at
	s.counts.completed++
	delete(s.tasks, t.ID)

	s.logger.Info("task completed",
		"task_id", t.ID,
		"worker_id", rec.id,
		"category", t.Category,
		"duration", t.Duration())
	s.emit(events.TypeTaskCompleted, t)
	s.afterRelease()
}

func (s *Scheduler) onErrored(rec *workerRecord, msg message) {
	t := s.current(rec, msg)
	if t == nil {
		return
	}
	rec.lastHeartbeat = msg.at
	s.workers.markIdle(rec.id)

	t.Attempts++
	execErr := &ExecutionError{TaskID: t.ID, Attempt: t.Attempts, Err: msg.err}
	t.Error = execErr.Error()

	// Requeue at the original priority while attempts remain
	if t.Attempts < s.config.MaxAttempts {
		t.State = StateQueued
		t.WorkerID = ""
		s.queues.push(t)
		s.logger.Warn("task attempt failed, requeued",
			"task_id", t.ID,
			"worker_id", rec.id,
			"attempt", t.Attempts,
			"max_attempts", s.config.MaxAttempts,
			"error", msg.err)
	} else {
		s.fail(t, execErr, msg.at)
	}
	s.afterRelease()
}

// afterRelease runs whenever a worker becomes free.
func (s *Scheduler) afterRelease() {
	if s.Phase() == PhaseDraining {
		s.checkDrain()
		return
	}
	s.dispatchQueued()
}

// fail moves t to its terminal failed state.
func (s *Scheduler) fail(t *Task, err error, at time.Time) {
	t.State = StateFailed
	t.Error = err.Error()
	t.CompletedAt = at
	s.counts.failed++
	delete(s.tasks, t.ID)

	s.logger.Error("task failed",
		"task_id", t.ID,
		"category", t.Category,
		"attempts", t.Attempts,
		"error", err)
	s.emit(events.TypeTaskFailed, t)
}

// emit publishes a copy of t through the outbox. Enqueueing never blocks,
// so subscribers may call back into the scheduler.
func (s *Scheduler) emit(eventType string, t *Task) {
	event, err := events.NewEvent(eventType, *t)
	if err != nil {
		s.logger.Error("failed to create event", "error", err, "event_type", eventType, "task_id", t.ID)
		return
	}
	if err := s.outbox.EmitEvent(context.Background(), event); err != nil {
		s.logger.Warn("failed to emit event", "error", err, "event_type", eventType, "task_id", t.ID)
	}
}

// spawn starts a new idle worker for category and registers it.
func (s *Scheduler) spawn(category string) *workerRecord {
	w := newWorker(s.ctx, category, s.handlers[category], s.config.HeartbeatInterval, s.logger)
	now := time.Now()
	rec := &workerRecord{
		id:            w.id,
		category:      category,
		status:        WorkerIdle,
		startedAt:     now,
		lastHeartbeat: now,
		handle:        w,
	}
	s.workers.add(rec)
	w.start(s.msgCh, &s.workerWG)
	return rec
}

// finish runs on the loop goroutine after the last state transition.
func (s *Scheduler) finish() {
	s.final = s.snapshot()
	// From here on call() fails fast. Subscribers still receiving events
	// may call back in, and the outbox below waits for them.
	close(s.exited)
	if s.drainErr == nil {
		// No handler is still running, so every worker exits promptly.
		s.workerWG.Wait()
	}
	s.outbox.Close()

	s.logger.Info("scheduler terminated",
		"completed", s.counts.completed,
		"failed", s.counts.failed,
		"cancelled", s.counts.cancelled)
	close(s.done)
}
