package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrEmitterClosed is returned when emitting on a closed AsyncEmitter.
var ErrEmitterClosed = errors.New("event emitter closed")

// AsyncEmitter queues events and forwards them to another emitter from a
// single goroutine, so delivery order matches emission order.
//
// EmitEvent never blocks: the queue grows as needed. A subscriber may
// therefore call back into whatever produced the event without deadlocking
// it. warnAt is a soft limit; crossing it logs a warning once until the
// queue empties again.
type AsyncEmitter struct {
	next   EventEmitter
	warnAt int
	logger *slog.Logger

	mu      sync.Mutex
	pending []*Event
	closed  bool
	warned  bool

	// wake holds at most one signal that pending changed
	wake chan struct{}
	done chan struct{}
}

// NewAsyncEmitter starts forwarding events to next. A queue deeper than
// warnAt is reported in the logs.
func NewAsyncEmitter(next EventEmitter, warnAt int, logger *slog.Logger) *AsyncEmitter {
	if warnAt <= 0 {
		warnAt = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &AsyncEmitter{
		next:   next,
		warnAt: warnAt,
		logger: logger.With("component", "async_event_emitter"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// EmitEvent enqueues the event for delivery. ctx is not used: enqueueing
// cannot block.
func (a *AsyncEmitter) EmitEvent(_ context.Context, event *Event) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrEmitterClosed
	}
	a.pending = append(a.pending, event)
	depth := len(a.pending)
	warn := depth > a.warnAt && !a.warned
	if warn {
		a.warned = true
	}
	a.mu.Unlock()

	if warn {
		a.logger.Warn("event queue above soft limit, delivery is falling behind",
			"event_type", event.Type,
			"depth", depth,
			"soft_limit", a.warnAt)
	}
	a.signal()
	return nil
}

// Len returns the number of events waiting for delivery.
func (a *AsyncEmitter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Close stops accepting events and waits until every queued event has been
// delivered. It is safe to call more than once.
func (a *AsyncEmitter) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.signal()
	<-a.done
}

func (a *AsyncEmitter) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *AsyncEmitter) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.pending) == 0 && !a.closed {
			a.mu.Unlock()
			<-a.wake
			a.mu.Lock()
		}
		if len(a.pending) == 0 {
			// closed and fully drained
			a.mu.Unlock()
			return
		}
		batch := a.pending
		a.pending = nil
		a.warned = false
		a.mu.Unlock()

		for _, event := range batch {
			if err := a.next.EmitEvent(context.Background(), event); err != nil {
				a.logger.Warn("event delivery failed",
					"error", err,
					"event_id", event.ID,
					"event_type", event.Type)
			}
		}
	}
}
