// Package monitoring exposes liveness checks over the engine's dependencies
// and an HTTP surface for status inspection.
package monitoring

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const checkTimeout = 10 * time.Second

// Component health states.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
	StateUnknown   = "unknown"
)

// Pinger is any dependency that can answer a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ComponentHealth is the probe outcome for a single dependency.
type ComponentHealth struct {
	Name         string        `json:"name"`
	State        string        `json:"state"`
	ResponseTime time.Duration `json:"response_time_ms"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Report is one full health sweep over all registered components.
type Report struct {
	State      string            `json:"state"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

type component struct {
	name     string
	critical bool
	pinger   Pinger
}

// HealthChecker probes registered dependencies. A failing critical component
// makes the whole report unhealthy; a failing optional one only degrades it.
type HealthChecker struct {
	logger *slog.Logger

	mu         sync.Mutex
	components []component
	lastReport *Report
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		logger: slog.Default().With("component", "health"),
	}
}

// RegisterCritical adds a dependency whose failure marks the service
// unhealthy. Nil pingers are ignored so optional wiring stays simple.
func (h *HealthChecker) RegisterCritical(name string, p Pinger) {
	h.register(name, p, true)
}

// RegisterOptional adds a dependency whose failure only degrades the service.
func (h *HealthChecker) RegisterOptional(name string, p Pinger) {
	h.register(name, p, false)
}

func (h *HealthChecker) register(name string, p Pinger, critical bool) {
	if p == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components = append(h.components, component{name: name, critical: critical, pinger: p})
}

// Check probes every component and aggregates the result.
func (h *HealthChecker) Check(ctx context.Context) Report {
	h.mu.Lock()
	comps := make([]component, len(h.components))
	copy(comps, h.components)
	h.mu.Unlock()

	report := Report{State: StateHealthy, CheckedAt: time.Now()}
	if len(comps) == 0 {
		report.State = StateUnknown
		return report
	}

	for _, c := range comps {
		entry := h.probe(ctx, c)
		report.Components = append(report.Components, entry)
		if entry.State == StateHealthy {
			continue
		}
		if c.critical {
			report.State = StateUnhealthy
		} else if report.State == StateHealthy {
			report.State = StateDegraded
		}
	}

	h.mu.Lock()
	h.lastReport = &report
	h.mu.Unlock()
	return report
}

func (h *HealthChecker) probe(ctx context.Context, c component) ComponentHealth {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.pinger.Ping(probeCtx)
	entry := ComponentHealth{
		Name:         c.name,
		State:        StateHealthy,
		ResponseTime: time.Since(start),
		CheckedAt:    start,
	}
	if err != nil {
		entry.State = StateUnhealthy
		entry.Error = err.Error()
		h.logger.Warn("Health probe failed", "component", c.name, "error", err)
	}
	return entry
}

// LastReport returns the most recent sweep, or nil before the first Check.
func (h *HealthChecker) LastReport() *Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReport
}
