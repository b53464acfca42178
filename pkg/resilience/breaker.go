package resilience

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig parameterizes a circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// DefaultBreakerConfig matches the upstream defaults: trip after five
// consecutive failures, allow one trial after sixty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// NewBreaker builds a named circuit breaker. The breaker opens after
// FailureThreshold consecutive failures and permits a single trial call
// once ResetTimeout has elapsed.
func NewBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	logger := slog.Default().With("component", "breaker", "name", name)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
}
