package resilience

import (
	"sync"
	"time"
)

// Budget caps the global number of retries within a sliding window, and
// optionally the number of concurrently retrying tasks.
type Budget struct {
	mu         sync.Mutex
	window     time.Duration
	maxRetries int
	stamps     []time.Time

	sem chan struct{}
}

// NewBudget creates a budget allowing maxRetries retries per window.
// maxConcurrent <= 0 disables the concurrency cap.
func NewBudget(maxRetries int, window time.Duration, maxConcurrent int) *Budget {
	b := &Budget{
		window:     window,
		maxRetries: maxRetries,
	}
	if maxConcurrent > 0 {
		b.sem = make(chan struct{}, maxConcurrent)
	}
	return b
}

// AllowRetry consumes one retry token if the window has capacity.
func (b *Budget) AllowRetry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-b.window)
	kept := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.stamps = kept

	if len(b.stamps) >= b.maxRetries {
		return false
	}
	b.stamps = append(b.stamps, now)
	return true
}

// TryAcquireSlot claims a concurrency slot without blocking.
// Always succeeds when no cap is configured.
func (b *Budget) TryAcquireSlot() bool {
	if b.sem == nil {
		return true
	}
	select {
	case b.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// ReleaseSlot returns a concurrency slot.
func (b *Budget) ReleaseSlot() {
	if b.sem == nil {
		return
	}
	select {
	case <-b.sem:
	default:
	}
}

// Remaining reports the retry tokens left in the current window.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-b.window)
	used := 0
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			used++
		}
	}
	if used > b.maxRetries {
		return 0
	}
	return b.maxRetries - used
}
