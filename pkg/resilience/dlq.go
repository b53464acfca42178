package resilience

import (
	"sync"
	"time"
)

// DefaultDLQCapacity bounds the in-memory dead-letter queue.
const DefaultDLQCapacity = 10000

// DeadLetter records a task whose retries were exhausted.
type DeadLetter struct {
	TaskID    string
	Error     string
	Attempts  int
	FirstSeen time.Time
	LastSeen  time.Time
}

// DeadLetterQueue is a bounded in-memory queue of failed tasks. When full,
// the oldest entry is dropped. Re-adding a known task id updates the
// existing entry in place.
type DeadLetterQueue struct {
	mu       sync.Mutex
	capacity int
	order    []string
	entries  map[string]*DeadLetter
}

// NewDeadLetterQueue creates a queue with the given capacity.
// A capacity below 1 falls back to DefaultDLQCapacity.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity < 1 {
		capacity = DefaultDLQCapacity
	}
	return &DeadLetterQueue{
		capacity: capacity,
		entries:  make(map[string]*DeadLetter),
	}
}

// Add records a failed task.
func (q *DeadLetterQueue) Add(taskID string, err error, attempts int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if existing, ok := q.entries[taskID]; ok {
		existing.Error = msg
		existing.Attempts += attempts
		existing.LastSeen = now
		return
	}

	if len(q.order) >= q.capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.entries, oldest)
	}

	q.entries[taskID] = &DeadLetter{
		TaskID:    taskID,
		Error:     msg,
		Attempts:  attempts,
		FirstSeen: now,
		LastSeen:  now,
	}
	q.order = append(q.order, taskID)
}

// Get returns the entry for a task id, if present.
func (q *DeadLetterQueue) Get(taskID string) (DeadLetter, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[taskID]; ok {
		return *e, true
	}
	return DeadLetter{}, false
}

// Len returns the current number of entries.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Drain removes and returns all entries in insertion order.
func (q *DeadLetterQueue) Drain() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetter, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.entries[id])
	}
	q.order = nil
	q.entries = make(map[string]*DeadLetter)
	return out
}
