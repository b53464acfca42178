package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

var validSeverities = map[string]bool{
	"info": true, "warning": true, "error": true, "critical": true,
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToUpper(c.LogLevel)] {
		return fmt.Errorf("log_level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", c.LogLevel)
	}

	if err := c.validateAgents(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateResilience(); err != nil {
		return err
	}

	if c.Validation.SimilarityThreshold < 0 || c.Validation.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Validation.SimilarityThreshold)
	}
	if c.Validation.MinEvidenceLevel < 1 || c.Validation.MinEvidenceLevel > 5 {
		return fmt.Errorf("min_evidence_level must be in [1,5], got %d", c.Validation.MinEvidenceLevel)
	}

	if !validSeverities[strings.ToLower(c.Alerting.MinSeverity)] {
		return fmt.Errorf("alert min severity must be one of info, warning, error, critical, got %q", c.Alerting.MinSeverity)
	}
	if c.Alerting.RateLimitWindow <= 0 {
		return fmt.Errorf("alert rate limit window must be positive")
	}

	if c.Monitoring.ErrorRateThreshold <= 0 || c.Monitoring.ErrorRateThreshold > 1 {
		return fmt.Errorf("error rate threshold must be in (0,1], got %v", c.Monitoring.ErrorRateThreshold)
	}
	if c.Monitoring.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	return nil
}

func (c *Config) validateAgents() error {
	for _, name := range AgentNames() {
		ac, err := c.AgentConfigFor(name)
		if err != nil {
			return err
		}
		if ac.Interval <= 0 {
			return fmt.Errorf("%s interval must be positive", name)
		}
		if ac.BatchSize < 1 {
			return fmt.Errorf("%s batch size must be at least 1", name)
		}
	}
	return nil
}

func (c *Config) validateLLM() error {
	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("llm base URL must start with http:// or https://, got %q", c.LLM.BaseURL)
	}
	if c.LLM.APIKey != "" && !strings.HasPrefix(c.LLM.APIKey, "sk-") {
		return fmt.Errorf("llm API key must start with \"sk-\"")
	}
	if c.LLM.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.LLM.RequestsPerSecond <= 0 {
		return fmt.Errorf("llm rate limit must be positive")
	}
	return nil
}

func (c *Config) validateSources() error {
	limits := map[string]float64{
		"pubmed":   c.Sources.PubMedRPS,
		"crossref": c.Sources.CrossRefRPS,
		"rss":      c.Sources.RSSRPS,
	}
	for name, rps := range limits {
		if rps <= 0 {
			return fmt.Errorf("%s rate limit must be positive", name)
		}
	}
	if c.Sources.DaysBack < 1 {
		return fmt.Errorf("research look-back window must be at least 1 day")
	}
	if c.Sources.MaxResultsPerTerm < 1 {
		return fmt.Errorf("research max results must be at least 1")
	}
	return nil
}

func (c *Config) validateResilience() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry max delay must be at least the base delay")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit breaker failure threshold must be at least 1")
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("circuit breaker reset timeout must be positive")
	}
	if c.Resilience.DLQCapacity < 1 {
		return fmt.Errorf("dead-letter queue capacity must be at least 1")
	}
	if c.Resilience.BudgetMaxRetries < 1 {
		return fmt.Errorf("retry budget max retries must be at least 1")
	}
	if c.Resilience.BudgetWindow <= 0 {
		return fmt.Errorf("retry budget window must be positive")
	}
	if c.Resilience.BudgetMaxConcurrent < 1 {
		return fmt.Errorf("retry budget concurrency must be at least 1")
	}
	return nil
}
