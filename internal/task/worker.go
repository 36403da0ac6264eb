package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// messageKind identifies a message sent from a worker to the dispatcher.
type messageKind int

const (
	msgStarted messageKind = iota
	msgCompleted
	msgErrored
	msgHeartbeat
	msgCrashed
	msgExited
)

func (k messageKind) String() string {
	switch k {
	case msgStarted:
		return "started"
	case msgCompleted:
		return "completed"
	case msgErrored:
		return "errored"
	case msgHeartbeat:
		return "heartbeat"
	case msgCrashed:
		return "crashed"
	case msgExited:
		return "exited"
	default:
		return "unknown"
	}
}

// message travels up from a worker to the dispatcher loop.
type message struct {
	kind     messageKind
	workerID string
	taskID   string
	result   json.RawMessage
	err      error
	at       time.Time
}

// assignment travels down from the dispatcher to a worker.
type assignment struct {
	taskID  string
	payload json.RawMessage
}

// worker runs one task at a time on its own goroutine. It shares nothing with
// the dispatcher except its two channels.
type worker struct {
	id        string
	category  string
	handler   Handler
	in        chan assignment
	ctx       context.Context
	cancel    context.CancelFunc
	heartbeat time.Duration
	logger    *slog.Logger
}

func newWorker(parent context.Context, category string, handler Handler, heartbeat time.Duration, logger *slog.Logger) *worker {
	ctx, cancel := context.WithCancel(parent)
	id := fmt.Sprintf("%s-%s", category, uuid.New().String()[:8])
	return &worker{
		id:        id,
		category:  category,
		handler:   handler,
		in:        make(chan assignment, 1),
		ctx:       ctx,
		cancel:    cancel,
		heartbeat: heartbeat,
		logger:    logger.With("worker_id", id, "category", category),
	}
}

// start launches the worker goroutine.
func (w *worker) start(out chan<- message, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.run(out)
	}()
}

// assign hands a task to the worker. It never blocks; false means the worker
// still holds an unread assignment.
func (w *worker) assign(a assignment) bool {
	select {
	case w.in <- a:
		return true
	default:
		return false
	}
}

// terminate is the deliberate shutdown signal.
func (w *worker) terminate() {
	w.cancel()
}

func (w *worker) run(out chan<- message) {
	var current string
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panicked", "panic", r, "task_id", current)
			w.send(out, message{
				kind:   msgCrashed,
				taskID: current,
				err:    fmt.Errorf("%w: panic: %v", ErrWorkerCrashed, r),
			})
			return
		}
		if w.ctx.Err() == nil {
			w.send(out, message{
				kind:   msgExited,
				taskID: current,
				err:    fmt.Errorf("%w: terminated unexpectedly", ErrWorkerCrashed),
			})
			return
		}
		w.logger.Debug("worker stopped")
	}()

	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	w.logger.Debug("starting worker")
	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			// Heartbeats are best effort and never block the worker.
			select {
			case out <- message{kind: msgHeartbeat, workerID: w.id, at: time.Now()}:
			default:
			}

		case a := <-w.in:
			current = a.taskID
			if !w.send(out, message{kind: msgStarted, taskID: a.taskID}) {
				return
			}

			result, err := w.handler(w.ctx, a.payload)

			kind := msgCompleted
			if err != nil {
				kind = msgErrored
			}
			if !w.send(out, message{kind: kind, taskID: a.taskID, result: result, err: err}) {
				return
			}
			current = ""
		}
	}
}

// send delivers a message unless the worker has been terminated.
func (w *worker) send(out chan<- message, msg message) bool {
	msg.workerID = w.id
	if msg.at.IsZero() {
		msg.at = time.Now()
	}
	select {
	case out <- msg:
		return true
	case <-w.ctx.Done():
		return false
	}
}
