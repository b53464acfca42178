// Package engine schedules the curation agents. Each enabled agent runs on
// its own interval in its own goroutine; the engine owns their lifecycle and
// watches their error rates.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fitsci/curator/pkg/agents"
	"github.com/fitsci/curator/pkg/alerting"
	"github.com/fitsci/curator/pkg/config"
)

const defaultShutdownTimeout = 30 * time.Second

// AgentStatus is one agent's entry in the engine status snapshot.
type AgentStatus struct {
	Stats    agents.Stats  `json:"stats"`
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
	Healthy  bool          `json:"healthy"`
}

// Status is a point-in-time snapshot of the engine and its agents.
type Status struct {
	Running   bool                   `json:"running"`
	StartedAt *time.Time             `json:"started_at,omitempty"`
	Uptime    time.Duration          `json:"uptime,omitempty"`
	Agents    map[string]AgentStatus `json:"agents"`
}

// Engine runs registered agents on their configured intervals.
type Engine struct {
	cfg    *config.Config
	alerts *alerting.Service
	logger *slog.Logger

	mu     sync.Mutex
	agents map[string]agents.Agent
	order  []string

	running   atomic.Bool
	startedAt time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates an engine. The alerting service may be nil.
func New(cfg *config.Config, alerts *alerting.Service) *Engine {
	return &Engine{
		cfg:    cfg,
		alerts: alerts,
		logger: slog.Default().With("component", "engine"),
		agents: make(map[string]agents.Agent),
		stopCh: make(chan struct{}),
	}
}

// Register adds an agent to the engine. Registration order is preserved for
// RunOnce so a full manual cycle follows the pipeline.
func (e *Engine) Register(agent agents.Agent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := agent.Name()
	if _, exists := e.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	if _, err := e.cfg.AgentConfigFor(name); err != nil {
		return err
	}
	e.agents[name] = agent
	e.order = append(e.order, name)
	return nil
}

// Start launches the scheduling loops. It returns immediately; the loops run
// until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	e.startedAt = time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	started := 0
	for _, name := range e.order {
		agentCfg, err := e.cfg.AgentConfigFor(name)
		if err != nil {
			return err
		}
		if !agentCfg.Enabled {
			e.logger.Info("Agent disabled, skipping", "agent", name)
			continue
		}
		agent := e.agents[name]
		e.wg.Add(1)
		go e.runLoop(ctx, agent, agentCfg.Interval)
		started++
	}

	e.wg.Add(1)
	go e.monitorLoop(ctx)

	e.logger.Info("Engine started", "agents", started)
	return nil
}

// runLoop runs one agent immediately and then on every interval until the
// engine stops. Each wait is jittered by up to 10% so agents sharing an
// interval do not hit the store in lockstep.
func (e *Engine) runLoop(ctx context.Context, agent agents.Agent, interval time.Duration) {
	defer e.wg.Done()

	e.runAgent(ctx, agent)

	for {
		timer := time.NewTimer(jittered(interval))
		select {
		case <-e.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			e.runAgent(ctx, agent)
		}
	}
}

func jittered(interval time.Duration) time.Duration {
	jitter := interval / 10
	if jitter <= 0 {
		return interval
	}
	return interval - jitter + time.Duration(rand.Int63n(int64(2*jitter)))
}

func (e *Engine) runAgent(ctx context.Context, agent agents.Agent) {
	defer func() {
		if r := recover(); r != nil {
			agent.RecordFailure()
			e.logger.Error("Agent panicked", "agent", agent.Name(), "panic", r)
		}
	}()

	res, err := agent.Process(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error("Agent run failed", "agent", agent.Name(), "error", err)
		return
	}
	e.logger.Debug("Agent run complete", "agent", agent.Name(), "result", res)
}

// monitorLoop periodically compares agent error rates against the alerting
// threshold.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.cfg.Monitoring.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkErrorRates(ctx)
		}
	}
}

func (e *Engine) checkErrorRates(ctx context.Context) {
	threshold := e.cfg.Monitoring.ErrorRateThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	e.mu.Lock()
	registered := make([]agents.Agent, 0, len(e.order))
	for _, name := range e.order {
		registered = append(registered, e.agents[name])
	}
	e.mu.Unlock()

	for _, agent := range registered {
		rate := agent.ErrorRate()
		if rate > threshold {
			e.logger.Warn("Agent error rate above threshold",
				"agent", agent.Name(), "rate", rate, "threshold", threshold)
			e.alerts.AlertHighErrorRate(ctx, agent.Name(), rate, threshold)
		}
		if !agent.Healthy() {
			e.alerts.AlertAgentUnhealthy(ctx, agent.Name(),
				fmt.Sprintf("error rate %.2f over recent runs", rate))
		}
	}
}

// Stop shuts the engine down, waiting up to the shutdown timeout for
// in-flight agent runs to finish. It is safe to call more than once.
func (e *Engine) Stop(reason string) {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping engine", "reason", reason)
		close(e.stopCh)

		timeout := e.cfg.Monitoring.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			e.logger.Info("All agent loops stopped")
		case <-time.After(timeout):
			e.logger.Warn("Shutdown timeout exceeded, abandoning in-flight runs",
				"timeout", timeout)
		}

		e.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.alerts.AlertSchedulerStopped(ctx, reason)
	})
}

// RunOnce triggers a single iteration. With a name it runs that agent; with
// an empty name it runs every registered agent in pipeline order.
func (e *Engine) RunOnce(ctx context.Context, name string) (map[string]agents.Result, error) {
	e.mu.Lock()
	var selected []agents.Agent
	if name == "" {
		for _, n := range e.order {
			selected = append(selected, e.agents[n])
		}
	} else if agent, ok := e.agents[name]; ok {
		selected = append(selected, agent)
	}
	e.mu.Unlock()

	if len(selected) == 0 {
		return nil, fmt.Errorf("unknown agent %q", name)
	}

	results := make(map[string]agents.Result, len(selected))
	for _, agent := range selected {
		res, err := agent.Process(ctx)
		if err != nil {
			return results, fmt.Errorf("agent %s: %w", agent.Name(), err)
		}
		results[agent.Name()] = res
	}
	return results, nil
}

// Status reports the engine state and per-agent statistics.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		Running: e.running.Load(),
		Agents:  make(map[string]AgentStatus, len(e.agents)),
	}
	if status.Running {
		t := e.startedAt
		status.StartedAt = &t
		status.Uptime = time.Since(t)
	}
	for _, name := range e.order {
		agent := e.agents[name]
		entry := AgentStatus{
			Stats:   agent.Stats(),
			Healthy: agent.Healthy(),
		}
		if agentCfg, err := e.cfg.AgentConfigFor(name); err == nil {
			entry.Enabled = agentCfg.Enabled
			entry.Interval = agentCfg.Interval
		}
		status.Agents[name] = entry
	}
	return status
}
