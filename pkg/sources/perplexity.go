package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fitsci/curator/pkg/resilience"
)

const perplexityBaseURL = "https://api.perplexity.ai"

var perplexityQueries = []string{
	"hypertrophy training research",
	"strength training scientific study",
	"muscle growth evidence-based",
	"resistance training meta-analysis",
	"protein synthesis exercise",
	"progressive overload study",
	"recovery between workouts research",
	"training volume hypertrophy",
}

const perplexitySystemPrompt = `You are a research assistant focused on fitness and exercise science.
Provide evidence-based answers with citations to scientific studies.
Focus on peer-reviewed research, meta-analyses, and systematic reviews.
Always cite your sources.`

// PerplexityConfig holds Sonar API settings.
type PerplexityConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
	Breaker           resilience.BreakerConfig
}

// PerplexityClient searches the web for research through the Sonar
// chat-completions API, harvesting the citations it returns.
type PerplexityClient struct {
	cfg        PerplexityConfig
	httpClient *http.Client
	limiter    *resilience.Limiter
	retrier    *resilience.Handler
	logger     *slog.Logger
}

// NewPerplexityClient creates a Sonar search client. Returns nil when no API
// key is configured; callers treat a nil client as a disabled source.
func NewPerplexityClient(cfg PerplexityConfig, dlq *resilience.DeadLetterQueue, budget *resilience.Budget) *PerplexityClient {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = perplexityBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &PerplexityClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond, 1),
		retrier:    resilience.NewHandler(cfg.Retry, budget, dlq),
		logger:     slog.Default().With("component", "perplexity"),
	}
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []json.RawMessage `json:"citations"`
}

type perplexityCitation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Search runs one Sonar query and returns the articles built from its
// citations.
func (c *PerplexityClient) Search(ctx context.Context, query string) ([]Article, error) {
	payload, err := json.Marshal(map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": perplexitySystemPrompt},
			{"role": "user", "content": query},
		},
		"max_tokens":       c.cfg.MaxTokens,
		"return_citations": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling sonar request: %w", err)
	}

	var resp perplexityResponse
	err = c.retrier.Do(ctx, "perplexity-search", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating sonar request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading sonar response: %w", err)
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			return &resilience.HTTPError{StatusCode: httpResp.StatusCode, URL: c.cfg.BaseURL}
		}
		return json.Unmarshal(data, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("searching perplexity for %q: %w", query, err)
	}

	return citationArticles(resp.Citations, query), nil
}

// SearchResearch runs the default query set, deduplicating articles by URL
// and stopping at maxResults.
func (c *PerplexityClient) SearchResearch(ctx context.Context, maxResults int) ([]Article, error) {
	var all []Article
	seen := make(map[string]bool)
	for _, query := range perplexityQueries {
		if len(all) >= maxResults {
			break
		}
		articles, err := c.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			c.logger.Warn("Sonar query failed", "query", query, "error", err)
			continue
		}
		for _, a := range articles {
			if a.URL == nil || seen[*a.URL] {
				continue
			}
			seen[*a.URL] = true
			all = append(all, a)
			if len(all) >= maxResults {
				break
			}
		}
	}
	return all, nil
}

// citationArticles builds articles from the citation list, which may be bare
// URL strings or structured objects depending on the model.
func citationArticles(citations []json.RawMessage, query string) []Article {
	var out []Article
	for i, raw := range citations {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			if asString == "" {
				continue
			}
			u := asString
			out = append(out, Article{
				Title:      fmt.Sprintf("Source %d", i+1),
				URL:        &u,
				SourceType: "perplexity",
				Categories: []string{query},
			})
			continue
		}

		var asObject perplexityCitation
		if err := json.Unmarshal(raw, &asObject); err != nil || asObject.URL == "" {
			continue
		}
		title := asObject.Title
		if title == "" {
			title = fmt.Sprintf("Source %d", i+1)
		}
		u := asObject.URL
		a := Article{
			Title:      title,
			URL:        &u,
			SourceType: "perplexity",
			Categories: []string{query},
		}
		if asObject.Snippet != "" {
			snippet := asObject.Snippet
			a.Abstract = &snippet
		}
		out = append(out, a)
	}
	return out
}
