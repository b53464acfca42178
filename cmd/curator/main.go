// Curator daemon — runs the research curation agents on their schedules,
// serves health and status endpoints, and supports one-shot manual runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fitsci/curator/pkg/agents"
	"github.com/fitsci/curator/pkg/alerting"
	"github.com/fitsci/curator/pkg/config"
	"github.com/fitsci/curator/pkg/database"
	"github.com/fitsci/curator/pkg/engine"
	"github.com/fitsci/curator/pkg/llm"
	"github.com/fitsci/curator/pkg/monitoring"
	"github.com/fitsci/curator/pkg/resilience"
	"github.com/fitsci/curator/pkg/sources"
	"github.com/fitsci/curator/pkg/store"
	"github.com/fitsci/curator/pkg/version"
)

const usage = `usage: curator [flags] <command>

commands:
  run              start the agent engine and monitoring server (default)
  once [agent]     run one agent by name, or every agent in pipeline order
  status           query a running curator's status endpoint

flags:
`

func main() {
	envFile := flag.String("env-file", ".env", "Path to the .env file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}

	switch command {
	case "run":
		err = runDaemon(cfg)
	case "once":
		err = runOnce(cfg, flag.Arg(1))
	case "status":
		err = printStatus(cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warning", "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// deps holds everything wired for a full engine start.
type deps struct {
	db       *database.Client
	store    *store.Store
	alerts   *alerting.Service
	engine   *engine.Engine
	health   *monitoring.HealthChecker
	pubmed   *sources.PubMedClient
	crossref *sources.CrossRefClient
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("Connected to PostgreSQL, migrations applied")
	st := store.New(db.Pool())

	alerts := buildAlerting(cfg)

	llmClient := buildLLM(cfg)
	var llmService llm.Service
	if llmClient != nil {
		llmService = llmClient
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Strategy:    resilience.StrategyExponential,
		Jitter:      resilience.JitterEqual,
	}
	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	}
	dlq := resilience.NewDeadLetterQueue(cfg.Resilience.DLQCapacity)
	budget := resilience.NewBudget(cfg.Resilience.BudgetMaxRetries,
		cfg.Resilience.BudgetWindow, cfg.Resilience.BudgetMaxConcurrent)

	pubmed := sources.NewPubMedClient(sources.PubMedConfig{
		APIKey:            cfg.Sources.PubMedAPIKey,
		RequestsPerSecond: cfg.Sources.PubMedRPS,
		Retry:             retryCfg,
		Breaker:           breakerCfg,
	}, dlq, budget)
	crossref := sources.NewCrossRefClient(sources.CrossRefConfig{
		Mailto:            cfg.Sources.CrossRefMailto,
		RequestsPerSecond: cfg.Sources.CrossRefRPS,
		Retry:             retryCfg,
		Breaker:           breakerCfg,
	}, dlq, budget)
	rss := sources.NewRSSClient(sources.RSSConfig{
		RequestsPerSecond: cfg.Sources.RSSRPS,
		Retry:             retryCfg,
		Breaker:           breakerCfg,
	}, dlq, budget)

	researchDeps := agents.ResearchDeps{
		Store:               st,
		PubMed:              pubmed,
		CrossRef:            crossref,
		Feeds:               rss,
		DaysBack:            cfg.Sources.DaysBack,
		MaxResultsPerSource: cfg.Sources.MaxResultsPerTerm,
	}
	if cfg.Sources.ScraperEnabled {
		researchDeps.Scraper = sources.NewScraperClient(sources.ScraperConfig{
			PerDomainDelay: cfg.Sources.ScraperDelay,
			Retry:          retryCfg,
			Breaker:        breakerCfg,
		}, dlq, budget)
	}
	if cfg.Sources.PerplexityEnabled {
		perplexity := sources.NewPerplexityClient(sources.PerplexityConfig{
			APIKey:    cfg.Sources.PerplexityAPIKey,
			Model:     cfg.Sources.PerplexityModel,
			MaxTokens: cfg.Sources.PerplexityMaxTokens,
			Retry:     retryCfg,
			Breaker:   breakerCfg,
		}, dlq, budget)
		if perplexity != nil {
			researchDeps.WebSearch = perplexity
		}
	}

	eng := engine.New(cfg, alerts)
	pipeline := []agents.Agent{
		agents.NewResearchAgent(researchDeps),
		agents.NewExtractionAgent(st, llmService, cfg.Agents.Extraction.BatchSize),
		agents.NewValidationAgent(st, llmService, agents.ValidationConfig{
			BatchSize:            cfg.Agents.Validation.BatchSize,
			SimilarityThreshold:  cfg.Validation.SimilarityThreshold,
			MinEvidenceLevel:     cfg.Validation.MinEvidenceLevel,
			EnableAutoValidation: true,
		}),
		agents.NewKnowledgeBaseAgent(st, llmService, cfg.Agents.KnowledgeBase.BatchSize),
		agents.NewConflictAgent(st, llmService, agents.ConflictConfig{
			BatchSize: cfg.Agents.Conflict.BatchSize,
		}),
		agents.NewPromptEngineeringAgent(st),
	}
	for _, agent := range pipeline {
		if err := eng.Register(agent); err != nil {
			db.Close()
			return nil, fmt.Errorf("registering agent: %w", err)
		}
	}

	health := monitoring.NewHealthChecker()
	health.RegisterCritical("database", db)
	health.RegisterOptional("pubmed", pubmed)
	health.RegisterOptional("crossref", crossref)
	if llmClient != nil {
		health.RegisterOptional("llm", llmClient)
	}
	health.RegisterOptional("agents", monitoring.PingerFunc(func(context.Context) error {
		for name, entry := range eng.Status().Agents {
			if !entry.Healthy {
				return fmt.Errorf("agent %s unhealthy", name)
			}
		}
		return nil
	}))

	return &deps{
		db:       db,
		store:    st,
		alerts:   alerts,
		engine:   eng,
		health:   health,
		pubmed:   pubmed,
		crossref: crossref,
	}, nil
}

func buildAlerting(cfg *config.Config) *alerting.Service {
	var channels []alerting.Channel
	if cfg.Alerting.SlackWebhookURL != "" {
		channels = append(channels, alerting.NewSlackChannel(cfg.Alerting.SlackWebhookURL))
	}
	if cfg.Alerting.TelegramBotToken != "" && cfg.Alerting.TelegramChatID != "" {
		channels = append(channels, alerting.NewTelegramChannel(
			cfg.Alerting.TelegramBotToken, cfg.Alerting.TelegramChatID))
	}
	svc := alerting.NewService(alerting.ServiceConfig{
		MinSeverity:     alerting.Severity(cfg.Alerting.MinSeverity),
		RateLimitWindow: cfg.Alerting.RateLimitWindow,
	}, channels...)
	if svc == nil {
		slog.Info("No alert channels configured, alerting disabled")
	}
	return svc
}

// buildLLM returns nil when no provider is configured. Agents degrade to
// their no-model behavior in that case.
func buildLLM(cfg *config.Config) *llm.Client {
	if cfg.LLM.APIKey == "" {
		slog.Warn("No LLM API key configured, extraction and embeddings disabled")
		return nil
	}
	client, err := llm.NewClient(llm.Config{
		APIKey:              cfg.LLM.APIKey,
		BaseURL:             cfg.LLM.BaseURL,
		Model:               cfg.LLM.Model,
		EmbeddingModel:      cfg.LLM.EmbeddingModel,
		EmbeddingDimensions: cfg.LLM.EmbeddingDimensions,
		Timeout:             cfg.LLM.Timeout,
		RequestsPerSecond:   cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		slog.Error("Failed to build LLM client, continuing without one", "error", err)
		return nil
	}
	return client
}

func runDaemon(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	if err := d.engine.Start(ctx); err != nil {
		return err
	}

	server := monitoring.NewServer(cfg.Monitoring.HTTPPort, d.health, d.engine.Status)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	slog.Info("Curator started",
		"version", version.Full(),
		"environment", cfg.Environment, "http_port", cfg.Monitoring.HTTPPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	reason := ""
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
		reason = "signal " + sig.String()
	case err := <-serverErr:
		slog.Error("Monitoring server failed", "error", err)
		reason = "monitoring server error"
	}

	cancel()
	d.engine.Stop(reason)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Monitoring server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func runOnce(cfg *config.Config, agentName string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	results, err := d.engine.RunOnce(ctx, agentName)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func printStatus(cfg *config.Config) error {
	url := fmt.Sprintf("http://localhost:%s/status", cfg.Monitoring.HTTPPort)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("curator is not reachable at %s (is it running?): %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty json.RawMessage = body
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
