package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsci/curator/pkg/agents"
	"github.com/fitsci/curator/pkg/alerting"
	"github.com/fitsci/curator/pkg/config"
)

// stubAgent counts its runs and returns a canned result or error.
type stubAgent struct {
	name     string
	err      error
	runs     atomic.Int64
	failures atomic.Int64

	errorRate float64
	healthy   bool
}

func newStubAgent(name string) *stubAgent {
	return &stubAgent{name: name, healthy: true}
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Process(context.Context) (agents.Result, error) {
	s.runs.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return agents.Result{"processed": 1}, nil
}

func (s *stubAgent) Stats() agents.Stats {
	return agents.Stats{Name: s.name, Processed: int(s.runs.Load()), ErrorRate: s.errorRate}
}

func (s *stubAgent) ErrorRate() float64 { return s.errorRate }
func (s *stubAgent) Healthy() bool      { return s.healthy }
func (s *stubAgent) RecordFailure()     { s.failures.Add(1) }

// captureChannel records every alert the service delivers.
type captureChannel struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, alert alerting.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureChannel) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, a.Title)
	}
	return out
}

func testConfig() *config.Config {
	enabled := config.AgentConfig{Enabled: true, Interval: 20 * time.Millisecond, BatchSize: 5}
	return &config.Config{
		Environment: config.EnvTesting,
		Agents: config.AgentsConfig{
			Research:          enabled,
			Extraction:        enabled,
			Validation:        enabled,
			KnowledgeBase:     enabled,
			Conflict:          enabled,
			PromptEngineering: config.AgentConfig{Enabled: false, Interval: time.Hour},
		},
		Monitoring: config.MonitoringConfig{
			HealthCheckInterval: 10 * time.Millisecond,
			ErrorRateThreshold:  0.5,
			ShutdownTimeout:     time.Second,
		},
	}
}

func TestEngineRegister(t *testing.T) {
	e := New(testConfig(), nil)

	require.NoError(t, e.Register(newStubAgent("research")))
	assert.Error(t, e.Register(newStubAgent("research")), "duplicate registration")
	assert.Error(t, e.Register(newStubAgent("mystery")), "unknown agent name")
}

func TestEngineRunOnceSingleAgent(t *testing.T) {
	e := New(testConfig(), nil)
	research := newStubAgent("research")
	extraction := newStubAgent("extraction")
	require.NoError(t, e.Register(research))
	require.NoError(t, e.Register(extraction))

	results, err := e.RunOnce(context.Background(), "extraction")
	require.NoError(t, err)

	assert.Len(t, results, 1)
	assert.Equal(t, agents.Result{"processed": 1}, results["extraction"])
	assert.EqualValues(t, 0, research.runs.Load())
	assert.EqualValues(t, 1, extraction.runs.Load())
}

func TestEngineRunOnceAllInOrder(t *testing.T) {
	e := New(testConfig(), nil)
	research := newStubAgent("research")
	extraction := newStubAgent("extraction")
	require.NoError(t, e.Register(research))
	require.NoError(t, e.Register(extraction))

	results, err := e.RunOnce(context.Background(), "")
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.EqualValues(t, 1, research.runs.Load())
	assert.EqualValues(t, 1, extraction.runs.Load())
}

func TestEngineRunOnceUnknownAgent(t *testing.T) {
	e := New(testConfig(), nil)
	require.NoError(t, e.Register(newStubAgent("research")))

	_, err := e.RunOnce(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestEngineRunOnceSurfacesAgentError(t *testing.T) {
	e := New(testConfig(), nil)
	broken := newStubAgent("research")
	broken.err = errors.New("source down")
	require.NoError(t, e.Register(broken))

	_, err := e.RunOnce(context.Background(), "research")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source down")
}

func TestEngineStartRunsEnabledAgentsOnly(t *testing.T) {
	e := New(testConfig(), nil)
	research := newStubAgent("research")
	prompts := newStubAgent("prompt_engineering")
	require.NoError(t, e.Register(research))
	require.NoError(t, e.Register(prompts))

	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()), "double start")

	// Interval is 20ms; after 70ms the loop must have fired the initial run
	// plus at least one tick.
	time.Sleep(70 * time.Millisecond)
	e.Stop("test complete")

	assert.GreaterOrEqual(t, research.runs.Load(), int64(2))
	assert.EqualValues(t, 0, prompts.runs.Load())
}

func TestEngineStopAlertsAndIsIdempotent(t *testing.T) {
	capture := &captureChannel{}
	alerts := alerting.NewService(alerting.ServiceConfig{}, capture)
	e := New(testConfig(), alerts)
	require.NoError(t, e.Register(newStubAgent("research")))
	require.NoError(t, e.Start(context.Background()))

	e.Stop("shutdown requested")
	e.Stop("second call ignored")

	titles := capture.titles()
	require.Len(t, titles, 1)
	assert.Equal(t, "Scheduler Stopped", titles[0])
	assert.False(t, e.Status().Running)
}

// panickyAgent carries real counters so panics can be observed in its
// error rate.
type panickyAgent struct {
	*agents.Base
}

func (p *panickyAgent) Process(context.Context) (agents.Result, error) {
	panic("index out of range")
}

func TestEngineCountsRecoveredPanicsAsErrors(t *testing.T) {
	e := New(testConfig(), nil)
	agent := &panickyAgent{agents.NewBase("research")}
	require.NoError(t, e.Register(agent))

	e.runAgent(context.Background(), agent)
	e.runAgent(context.Background(), agent)

	assert.Equal(t, 2, agent.Stats().Errors)
	assert.Equal(t, 2.0, agent.ErrorRate())
}

func TestEngineErrorRateAlerts(t *testing.T) {
	capture := &captureChannel{}
	alerts := alerting.NewService(alerting.ServiceConfig{}, capture)
	e := New(testConfig(), alerts)

	flaky := newStubAgent("research")
	flaky.errorRate = 0.8
	flaky.healthy = false
	require.NoError(t, e.Register(flaky))

	e.checkErrorRates(context.Background())

	titles := capture.titles()
	assert.Contains(t, titles, "High Error Rate: research")
	assert.Contains(t, titles, "Agent Unhealthy: research")
}

func TestEngineStatus(t *testing.T) {
	e := New(testConfig(), nil)
	require.NoError(t, e.Register(newStubAgent("research")))

	status := e.Status()
	assert.False(t, status.Running)
	assert.Nil(t, status.StartedAt)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop("test complete")

	status = e.Status()
	assert.True(t, status.Running)
	require.NotNil(t, status.StartedAt)

	entry, ok := status.Agents["research"]
	require.True(t, ok)
	assert.True(t, entry.Enabled)
	assert.Equal(t, 20*time.Millisecond, entry.Interval)
	assert.True(t, entry.Healthy)
}
