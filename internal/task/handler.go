package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Handler executes the work for one category. It receives the opaque payload
// and returns an opaque result. Returning an error counts as a failed
// attempt; panicking takes the worker down and triggers a replacement.
type Handler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Handlers maps a category to the handler that runs its tasks.
type Handlers map[string]Handler

// resolve returns the handler table for the configured pools, failing if any
// pool has no handler.
func (h Handlers) resolve(pools map[string]int) (map[string]Handler, error) {
	resolved := make(map[string]Handler, len(pools))
	for _, category := range sortedCategories(pools) {
		fn, ok := h[category]
		if !ok || fn == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingHandler, category)
		}
		resolved[category] = fn
	}
	return resolved, nil
}

// EchoHandler returns the payload unchanged.
func EchoHandler(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}

// sortedCategories returns the pool names in a stable order so workers are
// created deterministically.
func sortedCategories(pools map[string]int) []string {
	categories := make([]string, 0, len(pools))
	for category := range pools {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}
