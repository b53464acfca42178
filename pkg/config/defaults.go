package config

import "time"

// productionDefaults returns the conservative production preset.
func productionDefaults() *Config {
	return &Config{
		Environment: EnvProduction,
		LogLevel:    "INFO",
		Agents: AgentsConfig{
			Research:          AgentConfig{Enabled: true, Interval: 24 * time.Hour, BatchSize: 20},
			Extraction:        AgentConfig{Enabled: true, Interval: 30 * time.Minute, BatchSize: 5},
			Validation:        AgentConfig{Enabled: true, Interval: 15 * time.Minute, BatchSize: 10},
			KnowledgeBase:     AgentConfig{Enabled: true, Interval: 10 * time.Minute, BatchSize: 10},
			Conflict:          AgentConfig{Enabled: true, Interval: time.Hour, BatchSize: 10},
			PromptEngineering: AgentConfig{Enabled: true, Interval: 24 * time.Hour, BatchSize: 10},
		},
		LLM: LLMConfig{
			BaseURL:             "https://api.openai.com/v1",
			Model:               "gpt-4o",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1536,
			Timeout:             60 * time.Second,
			RequestsPerSecond:   3.0,
		},
		Sources: SourcesConfig{
			PubMedRPS:           2.0,
			CrossRefRPS:         5.0,
			RSSRPS:              1.0,
			DaysBack:            30,
			MaxResultsPerTerm:   20,
			ScraperEnabled:      false,
			ScraperDelay:        2 * time.Second,
			ScraperTimeout:      30 * time.Second,
			ScraperMaxRetries:   3,
			PerplexityEnabled:   true,
			PerplexityModel:     "sonar",
			PerplexityTimeout:   60 * time.Second,
			PerplexityMaxTokens: 1024,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 10,
			ResetTimeout:     2 * time.Minute,
		},
		Resilience: ResilienceConfig{
			DLQCapacity:         1000,
			BudgetMaxRetries:    100,
			BudgetWindow:        time.Minute,
			BudgetMaxConcurrent: 10,
		},
		Validation: ValidationConfig{
			SimilarityThreshold: 0.85,
			MinEvidenceLevel:    2,
		},
		Alerting: AlertingConfig{
			MinSeverity:     "warning",
			RateLimitWindow: time.Minute,
		},
		Monitoring: MonitoringConfig{
			HTTPPort:            "8080",
			HealthCheckInterval: time.Minute,
			ErrorRateThreshold:  0.5,
			ShutdownTimeout:     30 * time.Second,
		},
	}
}

// developmentDefaults shortens intervals and loosens rate limits for fast
// iteration.
func developmentDefaults() *Config {
	cfg := productionDefaults()
	cfg.Environment = EnvDevelopment
	cfg.LogLevel = "DEBUG"

	cfg.Agents.Research.Interval = time.Hour
	cfg.Agents.Extraction.Interval = 5 * time.Minute
	cfg.Agents.Validation.Interval = 3 * time.Minute
	cfg.Agents.KnowledgeBase.Interval = 2 * time.Minute
	cfg.Agents.Conflict.Interval = 10 * time.Minute

	cfg.Sources.PubMedRPS = 5.0
	cfg.Sources.CrossRefRPS = 15.0
	cfg.LLM.RequestsPerSecond = 10.0

	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelay = time.Second
	cfg.Retry.MaxDelay = 5 * time.Second

	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.ResetTimeout = time.Minute

	cfg.Monitoring.HealthCheckInterval = 30 * time.Second
	return cfg
}

// testingDefaults uses very short intervals, tiny batches and minimal
// retries so the suite fails fast.
func testingDefaults() *Config {
	cfg := productionDefaults()
	cfg.Environment = EnvTesting
	cfg.LogLevel = "DEBUG"

	cfg.Agents.Research = AgentConfig{Enabled: true, Interval: time.Minute, BatchSize: 5}
	cfg.Agents.Extraction = AgentConfig{Enabled: true, Interval: 30 * time.Second, BatchSize: 2}
	cfg.Agents.Validation = AgentConfig{Enabled: true, Interval: 15 * time.Second, BatchSize: 3}
	cfg.Agents.KnowledgeBase = AgentConfig{Enabled: true, Interval: 10 * time.Second, BatchSize: 3}
	cfg.Agents.Conflict = AgentConfig{Enabled: true, Interval: 20 * time.Second, BatchSize: 3}
	cfg.Agents.PromptEngineering = AgentConfig{Enabled: true, Interval: time.Minute, BatchSize: 3}

	cfg.Sources.PubMedRPS = 100.0
	cfg.Sources.CrossRefRPS = 100.0
	cfg.Sources.RSSRPS = 100.0
	cfg.LLM.RequestsPerSecond = 100.0

	cfg.Retry.MaxAttempts = 1
	cfg.Retry.BaseDelay = 100 * time.Millisecond
	cfg.Retry.MaxDelay = time.Second

	cfg.Breaker.FailureThreshold = 2
	cfg.Breaker.ResetTimeout = 5 * time.Second

	cfg.Resilience.DLQCapacity = 100
	cfg.Resilience.BudgetWindow = 5 * time.Second

	cfg.Monitoring.HealthCheckInterval = 10 * time.Second
	return cfg
}
