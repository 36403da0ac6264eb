package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/taskforge/internal/task"
)

// simulatedWork is the optional payload understood by the demo handlers.
// Any other payload is echoed back after the category's default delay.
type simulatedWork struct {
	DurationMS int    `json:"duration_ms"`
	Fail       string `json:"fail"`
	Panic      string `json:"panic"`
}

// demoResult is returned by the demo handlers.
type demoResult struct {
	Category string          `json:"category"`
	Elapsed  string          `json:"elapsed"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Default simulated processing time per category.
var demoDelays = map[string]time.Duration{
	task.CategoryDocument: 200 * time.Millisecond,
	task.CategoryAI:       500 * time.Millisecond,
	task.CategoryDatabase: 100 * time.Millisecond,
	task.CategoryGeneral:  50 * time.Millisecond,
}

// errSimulatedFailure is returned when a payload asks the handler to fail.
var errSimulatedFailure = errors.New("simulated failure")

// demoHandlers returns a handler for every configured pool. The built-in
// categories sleep to simulate work; other categories echo their payload.
func demoHandlers(pools map[string]int) task.Handlers {
	handlers := make(task.Handlers, len(pools))
	for category := range pools {
		delay, ok := demoDelays[category]
		if !ok {
			handlers[category] = task.EchoHandler
			continue
		}
		handlers[category] = simulateWork(category, delay)
	}
	return handlers
}

func simulateWork(category string, delay time.Duration) task.Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var work simulatedWork
		if len(payload) > 0 {
			// Payloads are opaque; only an object can carry instructions.
			_ = json.Unmarshal(payload, &work)
		}
		if work.Panic != "" {
			panic(work.Panic)
		}

		d := delay
		if work.DurationMS > 0 {
			d = time.Duration(work.DurationMS) * time.Millisecond
		}

		start := time.Now()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if work.Fail != "" {
			return nil, fmt.Errorf("%w: %s", errSimulatedFailure, work.Fail)
		}
		return json.Marshal(demoResult{
			Category: category,
			Elapsed:  time.Since(start).Round(time.Millisecond).String(),
			Payload:  payload,
		})
	}
}
