package resilience

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a blocking token-bucket rate limiter for outbound calls.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter creates a limiter with the given refill rate. A burst below 1
// defaults to the integer rate (minimum 1).
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// AdaptiveLimiter adjusts its rate from upstream feedback: halved when the
// upstream rate-limits, nudged up on success, clamped to [min, max].
type AdaptiveLimiter struct {
	mu             sync.Mutex
	l              *rate.Limiter
	current        float64
	min            float64
	max            float64
	backoffFactor  float64
	increaseFactor float64
	logger         *slog.Logger
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initial req/s.
func NewAdaptiveLimiter(initial, min, max float64) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		l:              rate.NewLimiter(rate.Limit(initial), burstFor(initial)),
		current:        initial,
		min:            min,
		max:            max,
		backoffFactor:  0.5,
		increaseFactor: 1.1,
		logger:         slog.Default().With("component", "adaptive-limiter"),
	}
}

func burstFor(rps float64) int {
	b := int(rps)
	if b < 1 {
		b = 1
	}
	return b
}

// Wait blocks until a token is available or the context is cancelled.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.l.Wait(ctx)
}

// ReportSuccess nudges the rate up by the increase factor.
func (a *AdaptiveLimiter) ReportSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.current * a.increaseFactor
	if next > a.max {
		next = a.max
	}
	if next != a.current {
		a.current = next
		a.l.SetLimit(rate.Limit(next))
		a.l.SetBurst(burstFor(next))
	}
}

// ReportRateLimited halves the rate after an upstream 429.
func (a *AdaptiveLimiter) ReportRateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.current * a.backoffFactor
	if next < a.min {
		next = a.min
	}
	if next != a.current {
		a.current = next
		a.l.SetLimit(rate.Limit(next))
		a.l.SetBurst(burstFor(next))
		a.logger.Warn("Upstream rate limited, reducing rate", "rps", next)
	}
}

// Rate returns the current requests-per-second setting.
func (a *AdaptiveLimiter) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
