// Package agents implements the periodic workers of the curation pipeline.
// Agents never call each other; staged records in the store are the only
// medium between them.
package agents

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// errLLMUnavailable marks work that needs the language model while no
// provider is configured.
var errLLMUnavailable = errors.New("llm service not configured")

// Result is the outcome summary of a single agent iteration.
type Result map[string]any

// Stats is a point-in-time snapshot of an agent's counters.
type Stats struct {
	Name         string         `json:"name"`
	Processed    int            `json:"processed"`
	Errors       int            `json:"errors"`
	LastRun      *time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration  `json:"last_duration,omitempty"`
	ErrorRate    float64        `json:"error_rate"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Agent is one periodic worker managed by the engine.
type Agent interface {
	Name() string
	Process(ctx context.Context) (Result, error)
	Stats() Stats
	ErrorRate() float64
	Healthy() bool
	RecordFailure()
}

// Base carries the counters and logger shared by every agent.
type Base struct {
	name   string
	logger *slog.Logger

	mu           sync.Mutex
	processed    int
	errors       int
	lastRun      time.Time
	lastDuration time.Duration
	extra        map[string]any
}

// NewBase creates the shared agent state.
func NewBase(name string) *Base {
	return &Base{
		name:   name,
		logger: slog.Default().With("component", "agent."+name),
		extra:  make(map[string]any),
	}
}

// Name returns the agent's registry name.
func (b *Base) Name() string { return b.name }

// observe records the outcome of one iteration. Agents call it via defer at
// the top of Process.
func (b *Base) observe(start time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRun = start
	b.lastDuration = time.Since(start)
	if err != nil {
		b.errors++
	} else {
		b.processed++
	}
}

// RecordFailure counts a run that died before it could report an outcome,
// such as a recovered panic.
func (b *Base) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors++
}

// addStat accumulates a named agent-specific counter.
func (b *Base) addStat(key string, delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, _ := b.extra[key].(int)
	b.extra[key] = cur + delta
}

// ErrorRate returns errors per completed iteration.
func (b *Base) ErrorRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.errors) / float64(max(b.processed, 1))
}

// Healthy reports whether the agent's recent runs are mostly succeeding.
func (b *Base) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.processed > 0 && float64(b.errors)/float64(b.processed) > 0.5 {
		return false
	}
	return true
}

// Stats returns a snapshot of the agent's counters.
func (b *Base) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:         b.name,
		Processed:    b.processed,
		Errors:       b.errors,
		LastDuration: b.lastDuration,
		ErrorRate:    float64(b.errors) / float64(max(b.processed, 1)),
	}
	if !b.lastRun.IsZero() {
		t := b.lastRun
		s.LastRun = &t
	}
	if len(b.extra) > 0 {
		s.Extra = make(map[string]any, len(b.extra))
		for k, v := range b.extra {
			s.Extra[k] = v
		}
	}
	return s
}
