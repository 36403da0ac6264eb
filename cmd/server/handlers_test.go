package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/phrazzld/taskforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoHandlers(t *testing.T) {
	handlers := demoHandlers(map[string]int{"ai": 1, "document": 2, "thumbnails": 1})

	require.Len(t, handlers, 3)
	for _, category := range []string{"ai", "document", "thumbnails"} {
		assert.NotNil(t, handlers[category], category)
	}

	out, err := handlers["thumbnails"](context.Background(), json.RawMessage(`{"w":64}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"w":64}`, string(out))
}

func TestSimulateWork(t *testing.T) {
	handler := simulateWork(task.CategoryDocument, time.Hour)

	t.Run("echoes payload with category", func(t *testing.T) {
		out, err := handler(context.Background(), json.RawMessage(`{"duration_ms":1,"doc":"a.pdf"}`))
		require.NoError(t, err)

		var result demoResult
		require.NoError(t, json.Unmarshal(out, &result))
		assert.Equal(t, "document", result.Category)
		assert.JSONEq(t, `{"duration_ms":1,"doc":"a.pdf"}`, string(result.Payload))
		assert.NotEmpty(t, result.Elapsed)
	})

	t.Run("non-object payload", func(t *testing.T) {
		fast := simulateWork("general", time.Millisecond)
		out, err := fast(context.Background(), json.RawMessage(`[1,2,3]`))
		require.NoError(t, err)
		assert.Contains(t, string(out), `"payload":[1,2,3]`)
	})

	t.Run("requested failure", func(t *testing.T) {
		_, err := handler(context.Background(), json.RawMessage(`{"duration_ms":1,"fail":"disk full"}`))
		require.ErrorIs(t, err, errSimulatedFailure)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("requested panic", func(t *testing.T) {
		assert.PanicsWithValue(t, "boom", func() {
			_, _ = handler(context.Background(), json.RawMessage(`{"panic":"boom"}`))
		})
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := handler(ctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
