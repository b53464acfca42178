package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides reads known environment variables on top of the preset.
// Unset variables keep their preset values; malformed values are errors.
func (c *Config) applyEnvOverrides() error {
	var err error

	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	// LLM
	c.LLM.APIKey = getEnvOrDefault("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnvOrDefault("OPENAI_MODEL", c.LLM.Model)
	c.LLM.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	if c.LLM.EmbeddingDimensions, err = getEnvInt("EMBEDDING_DIMENSIONS", c.LLM.EmbeddingDimensions); err != nil {
		return err
	}
	if c.LLM.RequestsPerSecond, err = getEnvFloat("OPENAI_RATE_LIMIT", c.LLM.RequestsPerSecond); err != nil {
		return err
	}

	// Sources
	c.Sources.PubMedAPIKey = getEnvOrDefault("PUBMED_API_KEY", c.Sources.PubMedAPIKey)
	c.Sources.CrossRefMailto = getEnvOrDefault("CROSSREF_MAILTO", c.Sources.CrossRefMailto)
	c.Sources.PerplexityAPIKey = getEnvOrDefault("PERPLEXITY_API_KEY", c.Sources.PerplexityAPIKey)
	c.Sources.PerplexityModel = getEnvOrDefault("PERPLEXITY_MODEL", c.Sources.PerplexityModel)
	if c.Sources.PubMedRPS, err = getEnvFloat("PUBMED_RATE_LIMIT", c.Sources.PubMedRPS); err != nil {
		return err
	}
	if c.Sources.CrossRefRPS, err = getEnvFloat("CROSSREF_RATE_LIMIT", c.Sources.CrossRefRPS); err != nil {
		return err
	}
	if c.Sources.RSSRPS, err = getEnvFloat("RSS_RATE_LIMIT", c.Sources.RSSRPS); err != nil {
		return err
	}
	if c.Sources.DaysBack, err = getEnvInt("RESEARCH_DAYS_BACK", c.Sources.DaysBack); err != nil {
		return err
	}
	if c.Sources.MaxResultsPerTerm, err = getEnvInt("RESEARCH_MAX_RESULTS", c.Sources.MaxResultsPerTerm); err != nil {
		return err
	}
	if c.Sources.ScraperEnabled, err = getEnvBool("SCRAPER_ENABLED", c.Sources.ScraperEnabled); err != nil {
		return err
	}
	if c.Sources.PerplexityEnabled, err = getEnvBool("PERPLEXITY_ENABLED", c.Sources.PerplexityEnabled); err != nil {
		return err
	}

	// Agent schedules
	agents := []struct {
		prefix string
		cfg    *AgentConfig
	}{
		{"RESEARCH", &c.Agents.Research},
		{"EXTRACTION", &c.Agents.Extraction},
		{"VALIDATION", &c.Agents.Validation},
		{"KB", &c.Agents.KnowledgeBase},
		{"CONFLICT", &c.Agents.Conflict},
		{"PROMPT_ENGINEERING", &c.Agents.PromptEngineering},
	}
	for _, a := range agents {
		if a.cfg.Enabled, err = getEnvBool(a.prefix+"_ENABLED", a.cfg.Enabled); err != nil {
			return err
		}
		if a.cfg.Interval, err = getEnvSeconds(a.prefix+"_INTERVAL", a.cfg.Interval); err != nil {
			return err
		}
		if a.cfg.BatchSize, err = getEnvInt(a.prefix+"_BATCH_SIZE", a.cfg.BatchSize); err != nil {
			return err
		}
	}

	// Resilience
	if c.Retry.MaxAttempts, err = getEnvInt("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts); err != nil {
		return err
	}
	if c.Retry.BaseDelay, err = getEnvSeconds("RETRY_BASE_DELAY", c.Retry.BaseDelay); err != nil {
		return err
	}
	if c.Retry.MaxDelay, err = getEnvSeconds("RETRY_MAX_DELAY", c.Retry.MaxDelay); err != nil {
		return err
	}
	if threshold, err := getEnvInt("CIRCUIT_BREAKER_FAIL_MAX", int(c.Breaker.FailureThreshold)); err != nil {
		return err
	} else {
		c.Breaker.FailureThreshold = uint32(threshold)
	}
	if c.Breaker.ResetTimeout, err = getEnvSeconds("CIRCUIT_BREAKER_RESET_TIMEOUT", c.Breaker.ResetTimeout); err != nil {
		return err
	}
	if c.Resilience.DLQCapacity, err = getEnvInt("DLQ_CAPACITY", c.Resilience.DLQCapacity); err != nil {
		return err
	}
	if c.Resilience.BudgetMaxRetries, err = getEnvInt("RETRY_BUDGET_MAX_RETRIES", c.Resilience.BudgetMaxRetries); err != nil {
		return err
	}
	if c.Resilience.BudgetWindow, err = getEnvSeconds("RETRY_BUDGET_WINDOW", c.Resilience.BudgetWindow); err != nil {
		return err
	}
	if c.Resilience.BudgetMaxConcurrent, err = getEnvInt("RETRY_BUDGET_CONCURRENCY", c.Resilience.BudgetMaxConcurrent); err != nil {
		return err
	}

	// Validation gates
	if c.Validation.SimilarityThreshold, err = getEnvFloat("SIMILARITY_THRESHOLD", c.Validation.SimilarityThreshold); err != nil {
		return err
	}
	if c.Validation.MinEvidenceLevel, err = getEnvInt("MIN_EVIDENCE_LEVEL", c.Validation.MinEvidenceLevel); err != nil {
		return err
	}

	// Alerting
	c.Alerting.SlackWebhookURL = getEnvOrDefault("SLACK_WEBHOOK_URL", c.Alerting.SlackWebhookURL)
	c.Alerting.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", c.Alerting.TelegramBotToken)
	c.Alerting.TelegramChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.Alerting.TelegramChatID)
	c.Alerting.MinSeverity = getEnvOrDefault("ALERT_MIN_SEVERITY", c.Alerting.MinSeverity)

	// Monitoring
	c.Monitoring.HTTPPort = getEnvOrDefault("HTTP_PORT", c.Monitoring.HTTPPort)
	if c.Monitoring.HealthCheckInterval, err = getEnvSeconds("HEALTH_CHECK_INTERVAL", c.Monitoring.HealthCheckInterval); err != nil {
		return err
	}
	if c.Monitoring.ErrorRateThreshold, err = getEnvFloat("ALERT_ERROR_RATE_THRESHOLD", c.Monitoring.ErrorRateThreshold); err != nil {
		return err
	}

	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getEnvSeconds reads an integer number of seconds, matching the interval
// variables used by deployment environments.
func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
