package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(strategy Strategy, jitter Jitter) RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Strategy:    strategy,
		Jitter:      jitter,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	h := NewHandler(fastRetryConfig(StrategyExponential, JitterNone), nil, nil)

	calls := 0
	err := h.Do(context.Background(), "task-1", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	dlq := NewDeadLetterQueue(10)
	h := NewHandler(fastRetryConfig(StrategyExponential, JitterNone), nil, dlq)

	calls := 0
	target := errors.New("connection reset")
	err := h.Do(context.Background(), "task-2", func(ctx context.Context) error {
		calls++
		return target
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
	assert.ErrorIs(t, err, target)

	entry, ok := dlq.Get("task-2")
	require.True(t, ok)
	assert.Equal(t, 3, entry.Attempts)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	h := NewHandler(fastRetryConfig(StrategyFibonacci, JitterFull), nil, nil)

	calls := 0
	err := h.Do(context.Background(), "task-3", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 503, URL: "https://example.org"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	dlq := NewDeadLetterQueue(10)
	h := NewHandler(fastRetryConfig(StrategyFixed, JitterNone), nil, dlq)

	calls := 0
	err := h.Do(context.Background(), "task-4", func(ctx context.Context) error {
		calls++
		return &HTTPError{StatusCode: 404, URL: "https://example.org"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, dlq.Len())

	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr))
}

func TestRetryHonorsBudget(t *testing.T) {
	budget := NewBudget(1, time.Minute, 0)
	dlq := NewDeadLetterQueue(10)
	h := NewHandler(fastRetryConfig(StrategyLinear, JitterEqual), budget, dlq)

	calls := 0
	err := h.Do(context.Background(), "task-5", func(ctx context.Context) error {
		calls++
		return errors.New("flaky")
	})

	require.Error(t, err)
	// First attempt plus the single budgeted retry.
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, dlq.Len())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &HTTPError{StatusCode: 429}, true},
		{"500", &HTTPError{StatusCode: 500}, true},
		{"503", &HTTPError{StatusCode: 503}, true},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"404", &HTTPError{StatusCode: 404}, false},
		{"timeout", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"breaker open", gobreaker.ErrOpenState, false},
		{"generic", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	h := NewHandler(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
		Strategy:    StrategyFixed,
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := h.Do(ctx, "task-6", func(ctx context.Context) error {
		calls++
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}
