package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterQueueAddAndGet(t *testing.T) {
	q := NewDeadLetterQueue(10)

	q.Add("task-a", errors.New("boom"), 3)

	entry, ok := q.Get("task-a")
	require.True(t, ok)
	assert.Equal(t, "boom", entry.Error)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, 1, q.Len())

	_, ok = q.Get("task-b")
	assert.False(t, ok)
}

func TestDeadLetterQueueUpdatesExistingEntry(t *testing.T) {
	q := NewDeadLetterQueue(10)

	q.Add("task-a", errors.New("first"), 3)
	q.Add("task-a", errors.New("second"), 2)

	entry, ok := q.Get("task-a")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Error)
	assert.Equal(t, 5, entry.Attempts)
	assert.Equal(t, 1, q.Len())
}

func TestDeadLetterQueueDropsOldestWhenFull(t *testing.T) {
	q := NewDeadLetterQueue(3)

	for i := 0; i < 4; i++ {
		q.Add(fmt.Sprintf("task-%d", i), errors.New("boom"), 1)
	}

	assert.Equal(t, 3, q.Len())
	_, ok := q.Get("task-0")
	assert.False(t, ok, "oldest entry should have been dropped")
	_, ok = q.Get("task-3")
	assert.True(t, ok)
}

func TestDeadLetterQueueDrain(t *testing.T) {
	q := NewDeadLetterQueue(10)
	q.Add("task-a", errors.New("boom"), 1)
	q.Add("task-b", errors.New("bang"), 2)

	entries := q.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, "task-a", entries[0].TaskID)
	assert.Equal(t, "task-b", entries[1].TaskID)
	assert.Equal(t, 0, q.Len())
}

func TestBudgetWindow(t *testing.T) {
	b := NewBudget(2, 50*time.Millisecond, 0)

	assert.True(t, b.AllowRetry())
	assert.True(t, b.AllowRetry())
	assert.False(t, b.AllowRetry())
	assert.Equal(t, 0, b.Remaining())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.AllowRetry(), "window should have reset")
}

func TestBudgetConcurrencySlots(t *testing.T) {
	b := NewBudget(100, time.Minute, 1)

	require.True(t, b.TryAcquireSlot())
	assert.False(t, b.TryAcquireSlot())
	b.ReleaseSlot()
	assert.True(t, b.TryAcquireSlot())
}

func TestBudgetWithoutConcurrencyCap(t *testing.T) {
	b := NewBudget(1, time.Minute, 0)

	for i := 0; i < 10; i++ {
		assert.True(t, b.TryAcquireSlot())
	}
}
