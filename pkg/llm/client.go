package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fitsci/curator/pkg/resilience"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.1

	extractionMaxTokens = 3000
	validationMaxTokens = 1500
	conflictMaxTokens   = 1000
)

// Config holds connection settings for an OpenAI-compatible provider.
type Config struct {
	APIKey              string
	BaseURL             string
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
	RequestsPerSecond   float64
}

// Client talks to an OpenAI-compatible chat-completions and embeddings API.
// Moonshot, Perplexity and other compatible providers work by pointing
// BaseURL at them.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *resilience.Limiter
	logger     *slog.Logger
}

// NewClient creates an LLM client. The base URL should include the version
// prefix, e.g. "https://api.openai.com/v1".
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond, 0),
		logger:     slog.Default().With("component", "llm"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// ExtractClaims runs the extraction prompt against a paper abstract. An empty
// abstract yields no claims without calling the provider. Malformed items in
// an otherwise valid response are skipped; a wholly unparseable response
// yields an empty list rather than an error.
func (c *Client) ExtractClaims(ctx context.Context, title string, authors []string, abstract string) ([]ExtractedClaim, error) {
	if strings.TrimSpace(abstract) == "" {
		return nil, nil
	}

	content, err := c.chat(ctx, renderExtractionPrompt(title, authors, abstract), extractionMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}

	claims, err := parseClaims(content)
	if err != nil {
		c.logger.Warn("Unparseable extraction response, treating as no claims",
			"title", title, "error", err)
		return nil, nil
	}
	return claims, nil
}

// ValidateClaim runs the validation prompt for a claim against its similar
// neighbors.
func (c *Client) ValidateClaim(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	content, err := c.chat(ctx, renderValidationPrompt(req), validationMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("validating claim: %w", err)
	}

	var result ValidationResult
	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		c.logger.Warn("Unparseable validation response", "error", err)
		return DegradedValidation("unparseable response"), nil
	}
	return &result, nil
}

// DetectConflict runs the pairwise conflict prompt for two claims.
func (c *Client) DetectConflict(ctx context.Context, a, b ClaimSide) (*ConflictResult, error) {
	content, err := c.chat(ctx, renderConflictPrompt(a, b), conflictMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("detecting conflict: %w", err)
	}

	var result ConflictResult
	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		c.logger.Warn("Unparseable conflict response", "error", err)
		return NoConflict("unparseable response"), nil
	}
	return &result, nil
}

// Embed generates an embedding vector for the text, truncated to the
// provider's input limit.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: truncate(text, maxEmbeddingChars),
	}

	var resp embeddingResponse
	if err := c.post(ctx, "/embeddings", body, &resp); err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("generating embedding: empty response")
	}
	vec := resp.Data[0].Embedding
	if c.cfg.EmbeddingDimensions > 0 && len(vec) != c.cfg.EmbeddingDimensions {
		return nil, fmt.Errorf("generating embedding: got %d dimensions, want %d",
			len(vec), c.cfg.EmbeddingDimensions)
	}
	return vec, nil
}

// Ping verifies the provider is reachable and the key is accepted by
// listing models.
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinging llm provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &resilience.HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

func (c *Client) chat(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
		Temperature: defaultTemperature,
		MaxTokens:   maxTokens,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &resilience.HTTPError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       truncate(string(data), 500),
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}
