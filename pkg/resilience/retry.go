package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"
)

// Strategy selects how the delay grows between attempts.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFibonacci   Strategy = "fibonacci"
	StrategyFixed       Strategy = "fixed"
)

// Jitter selects how randomness is applied to computed delays.
type Jitter string

const (
	JitterNone         Jitter = "none"
	JitterFull         Jitter = "full"
	JitterEqual        Jitter = "equal"
	JitterDecorrelated Jitter = "decorrelated"
)

// RetryConfig parameterizes a Handler.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    Strategy
	Jitter      Jitter
}

// DefaultRetryConfig mirrors the production preset.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Strategy:    StrategyExponential,
		Jitter:      JitterEqual,
	}
}

// RetryError reports a task whose attempts were exhausted.
type RetryError struct {
	TaskID   string
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempts: %v", e.TaskID, e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// Handler wraps external calls with bounded retries, an optional global
// retry budget, and dead-lettering of exhausted tasks.
type Handler struct {
	cfg    RetryConfig
	budget *Budget
	dlq    *DeadLetterQueue
	logger *slog.Logger
}

// NewHandler creates a retry handler. Budget and DLQ may be nil.
func NewHandler(cfg RetryConfig, budget *Budget, dlq *DeadLetterQueue) *Handler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyExponential
	}
	if cfg.Jitter == "" {
		cfg.Jitter = JitterNone
	}
	return &Handler{
		cfg:    cfg,
		budget: budget,
		dlq:    dlq,
		logger: slog.Default().With("component", "retry"),
	}
}

// Do runs fn, retrying transient failures per the configured strategy.
// Permanent failures (per IsRetryable) return immediately. When every
// attempt fails the task is dead-lettered and a *RetryError returned.
func (h *Handler) Do(ctx context.Context, taskID string, fn func(context.Context) error) error {
	attempts := 0
	var lastErr error

	backoff := h.backoff()
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempts > 0 {
			if h.budget != nil && !h.budget.AllowRetry() {
				if h.dlq != nil {
					h.dlq.Add(taskID, lastErr, attempts)
				}
				return fmt.Errorf("retry budget exhausted for %s: %w", taskID, lastErr)
			}
			h.logger.Warn("Retrying task", "task_id", taskID, "attempt", attempts+1)
		}
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if lastErr != nil && IsRetryable(lastErr) && attempts >= h.cfg.MaxAttempts {
		retryErr := &RetryError{TaskID: taskID, Attempts: attempts, Last: lastErr}
		if h.dlq != nil {
			h.dlq.Add(taskID, lastErr, attempts)
		}
		return retryErr
	}
	return err
}

// backoff builds a fresh backoff chain; go-retry backoffs are stateful and
// must not be shared between calls.
func (h *Handler) backoff() retry.Backoff {
	var b retry.Backoff
	switch h.cfg.Strategy {
	case StrategyLinear:
		b = linearBackoff(h.cfg.BaseDelay)
	case StrategyFibonacci:
		b = retry.NewFibonacci(h.cfg.BaseDelay)
	case StrategyFixed:
		b = retry.NewConstant(h.cfg.BaseDelay)
	default:
		b = retry.NewExponential(h.cfg.BaseDelay)
	}
	if h.cfg.MaxDelay > 0 {
		b = retry.WithCappedDuration(h.cfg.MaxDelay, b)
	}
	b = h.withJitter(b)
	return retry.WithMaxRetries(uint64(h.cfg.MaxAttempts-1), b)
}

func linearBackoff(base time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * base, false
	})
}

func (h *Handler) withJitter(b retry.Backoff) retry.Backoff {
	switch h.cfg.Jitter {
	case JitterFull:
		return retry.BackoffFunc(func() (time.Duration, bool) {
			d, stop := b.Next()
			if stop || d <= 0 {
				return d, stop
			}
			return time.Duration(rand.Int63n(int64(d))), false
		})
	case JitterEqual:
		return retry.BackoffFunc(func() (time.Duration, bool) {
			d, stop := b.Next()
			if stop || d <= 0 {
				return d, stop
			}
			half := d / 2
			return half + time.Duration(rand.Int63n(int64(half+1))), false
		})
	case JitterDecorrelated:
		prev := h.cfg.BaseDelay
		return retry.BackoffFunc(func() (time.Duration, bool) {
			_, stop := b.Next()
			if stop {
				return 0, true
			}
			d := h.cfg.BaseDelay + time.Duration(rand.Int63n(int64(prev*3-h.cfg.BaseDelay+1)))
			if h.cfg.MaxDelay > 0 && d > h.cfg.MaxDelay {
				d = h.cfg.MaxDelay
			}
			prev = d
			return d, false
		})
	default:
		return b
	}
}
