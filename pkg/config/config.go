// Package config provides application configuration loaded from environment
// variables, with per-environment presets and validation.
package config

import (
	"fmt"
	"time"
)

// Environment names accepted in the ENVIRONMENT variable.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// AgentConfig controls a single periodic agent.
type AgentConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// AgentsConfig holds the per-agent schedules.
type AgentsConfig struct {
	Research          AgentConfig
	Extraction        AgentConfig
	Validation        AgentConfig
	KnowledgeBase     AgentConfig
	Conflict          AgentConfig
	PromptEngineering AgentConfig
}

// LLMConfig configures the OpenAI-compatible LLM provider.
type LLMConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
	RequestsPerSecond   float64
}

// SourcesConfig configures the external research sources.
type SourcesConfig struct {
	PubMedAPIKey      string
	PubMedRPS         float64
	CrossRefMailto    string
	CrossRefRPS       float64
	RSSRPS            float64
	DaysBack          int
	MaxResultsPerTerm int

	ScraperEnabled    bool
	ScraperDelay      time.Duration
	ScraperTimeout    time.Duration
	ScraperMaxRetries int

	PerplexityEnabled   bool
	PerplexityAPIKey    string
	PerplexityModel     string
	PerplexityTimeout   time.Duration
	PerplexityMaxTokens int
}

// RetryConfig controls the shared retry primitive.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// BreakerConfig controls the circuit breakers guarding source clients.
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// ResilienceConfig sizes the shared dead-letter queue and retry budget.
type ResilienceConfig struct {
	DLQCapacity         int
	BudgetMaxRetries    int
	BudgetWindow        time.Duration
	BudgetMaxConcurrent int
}

// ValidationConfig controls the validation agent's gates.
type ValidationConfig struct {
	SimilarityThreshold float64
	MinEvidenceLevel    int
}

// AlertingConfig configures the outbound alert channels.
type AlertingConfig struct {
	SlackWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string
	MinSeverity      string
	RateLimitWindow  time.Duration
}

// MonitoringConfig controls health checking and the HTTP status server.
type MonitoringConfig struct {
	HTTPPort            string
	HealthCheckInterval time.Duration
	ErrorRateThreshold  float64
	ShutdownTimeout     time.Duration
}

// Config is the immutable configuration snapshot shared by the engine and
// all agents.
type Config struct {
	Environment string
	LogLevel    string

	Agents     AgentsConfig
	LLM        LLMConfig
	Sources    SourcesConfig
	Retry      RetryConfig
	Breaker    BreakerConfig
	Resilience ResilienceConfig
	Validation ValidationConfig
	Alerting   AlertingConfig
	Monitoring MonitoringConfig
}

// Load builds the configuration for the environment named in ENVIRONMENT
// (default production), applies environment variable overrides, and
// validates the result.
func Load() (*Config, error) {
	env := getEnvOrDefault("ENVIRONMENT", EnvProduction)
	cfg, err := defaultsFor(env)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultsFor(env string) (*Config, error) {
	switch env {
	case EnvDevelopment, "dev":
		return developmentDefaults(), nil
	case EnvProduction, "prod":
		return productionDefaults(), nil
	case EnvTesting, "test":
		return testingDefaults(), nil
	default:
		return nil, fmt.Errorf("unknown environment %q (choose development, production or testing)", env)
	}
}

// AgentNames lists the scheduler's agents in pipeline order.
func AgentNames() []string {
	return []string{"research", "extraction", "validation", "knowledge_base", "conflict", "prompt_engineering"}
}

// AgentConfigFor returns the schedule for a named agent.
func (c *Config) AgentConfigFor(name string) (AgentConfig, error) {
	switch name {
	case "research":
		return c.Agents.Research, nil
	case "extraction":
		return c.Agents.Extraction, nil
	case "validation":
		return c.Agents.Validation, nil
	case "knowledge_base":
		return c.Agents.KnowledgeBase, nil
	case "conflict":
		return c.Agents.Conflict, nil
	case "prompt_engineering":
		return c.Agents.PromptEngineering, nil
	default:
		return AgentConfig{}, fmt.Errorf("unknown agent %q", name)
	}
}
