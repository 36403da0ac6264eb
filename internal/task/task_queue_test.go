package task

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedTask(p Priority) *Task {
	return newTask(Request{Category: DefaultCategory, Priority: p}, time.Now())
}

func TestBand_FIFO(t *testing.T) {
	var b band
	assert.Nil(t, b.peek())
	assert.Nil(t, b.pop())
	assert.Equal(t, 0, b.len())

	t1, t2, t3 := newQueuedTask(PriorityNormal), newQueuedTask(PriorityNormal), newQueuedTask(PriorityNormal)
	b.push(t1)
	b.push(t2)
	b.push(t3)

	assert.Equal(t, 3, b.len())
	assert.Same(t, t1, b.peek())
	assert.Equal(t, 3, b.len(), "peek must not remove")

	assert.Same(t, t1, b.pop())
	assert.Same(t, t2, b.pop())

	// Requeued tasks go to the back.
	b.push(t1)
	assert.Same(t, t3, b.pop())
	assert.Same(t, t1, b.pop())
	assert.Nil(t, b.pop())
}

func TestBand_Compaction(t *testing.T) {
	var b band
	const n = 1000
	tasks := make([]*Task, n)
	for i := range tasks {
		tasks[i] = newQueuedTask(PriorityLow)
		b.push(tasks[i])
	}

	for i := 0; i < n-10; i++ {
		require.Same(t, tasks[i], b.pop(), "pop %d", i)
	}
	assert.Equal(t, 10, b.len())
	assert.Less(t, len(b.items), n, "consumed prefix should be reclaimed")

	rest := b.drain()
	assert.Equal(t, tasks[n-10:], rest)
	assert.Equal(t, 0, b.len())
}

func TestQueueSet(t *testing.T) {
	q := newQueueSet()

	byPriority := map[Priority]int{
		PriorityHigh:      2,
		PriorityNormal:    3,
		PriorityLow:       1,
		PriorityScheduled: 4,
	}
	var ids []string
	for _, p := range []Priority{PriorityScheduled, PriorityLow, PriorityNormal, PriorityHigh} {
		for i := 0; i < byPriority[p]; i++ {
			tk := newQueuedTask(p)
			ids = append(ids, tk.ID)
			q.push(tk)
		}
	}

	assert.Equal(t, QueueDepths{High: 2, Normal: 3, Low: 1, Scheduled: 4}, q.depths())
	assert.Equal(t, 10, q.depths().Total())

	for _, id := range ids {
		_, count := q.locate(id)
		assert.Equal(t, 1, count, "task %s", id)
	}
	p, count := q.locate("missing")
	assert.Equal(t, 0, count)
	assert.Empty(t, p)

	drained := q.drainAll()
	require.Len(t, drained, 10)
	var order []Priority
	for _, tk := range drained {
		order = append(order, tk.Priority)
	}
	assert.Equal(t, []Priority{
		PriorityHigh, PriorityHigh,
		PriorityNormal, PriorityNormal, PriorityNormal,
		PriorityLow,
		PriorityScheduled, PriorityScheduled, PriorityScheduled, PriorityScheduled,
	}, order)
	assert.Equal(t, QueueDepths{}, q.depths())
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{in: "", want: PriorityNormal},
		{in: "high", want: PriorityHigh},
		{in: " LOW ", want: PriorityLow},
		{in: "scheduled", want: PriorityScheduled},
		{in: "urgent", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%q", tc.in), func(t *testing.T) {
			got, err := ParsePriority(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPriority)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTask_Durations(t *testing.T) {
	submitted := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tk := Task{SubmittedAt: submitted}
	assert.Zero(t, tk.Duration())
	assert.Zero(t, tk.WaitTime())

	tk.StartedAt = submitted.Add(2 * time.Second)
	assert.Equal(t, 2*time.Second, tk.WaitTime())
	assert.Zero(t, tk.Duration())

	tk.CompletedAt = tk.StartedAt.Add(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, tk.Duration())
}

func TestState_IsTerminal(t *testing.T) {
	for _, s := range []State{StateQueued, StateAssigned, StateRunning} {
		assert.False(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StateCompleted, StateFailed, StateCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
}
