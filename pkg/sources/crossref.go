package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fitsci/curator/pkg/resilience"
	"github.com/fitsci/curator/pkg/timeutil"
)

const crossrefBaseURL = "https://api.crossref.org"

var crossrefQueries = []string{
	"resistance training",
	"strength training",
	"muscle hypertrophy",
	"protein synthesis",
	"exercise physiology",
	"sports nutrition",
	"periodization",
	"training adaptation",
	"muscle recovery",
	"bodybuilding",
	"powerlifting",
	"weightlifting",
}

// CrossRefConfig holds connection settings for the CrossRef REST API.
type CrossRefConfig struct {
	// Mailto joins the polite pool and should be a reachable contact address.
	Mailto            string
	BaseURL           string
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
	Breaker           resilience.BreakerConfig
}

// CrossRefClient searches the CrossRef works API.
type CrossRefClient struct {
	cfg     CrossRefConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewCrossRefClient creates a CrossRef client.
func NewCrossRefClient(cfg CrossRefConfig, dlq *resilience.DeadLetterQueue, budget *resilience.Budget) *CrossRefClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = crossrefBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	retrier := resilience.NewHandler(cfg.Retry, budget, dlq)
	f := newFetcher("crossref", cfg.RequestsPerSecond, retrier, cfg.Breaker)
	if cfg.Mailto != "" {
		f.userAgent = fmt.Sprintf("%s (mailto:%s)", UserAgent, cfg.Mailto)
	}
	return &CrossRefClient{
		cfg:     cfg,
		fetcher: f,
		logger:  slog.Default().With("component", "crossref"),
	}
}

type crossrefWork struct {
	DOI            string              `json:"DOI"`
	Title          []string            `json:"title"`
	ContainerTitle []string            `json:"container-title"`
	Abstract       string              `json:"abstract"`
	URL            string              `json:"URL"`
	Type           string              `json:"type"`
	CitedByCount   int                 `json:"is-referenced-by-count"`
	Subject        []string            `json:"subject"`
	Author         []crossrefAuthor    `json:"author"`
	PublishedPrint *crossrefDateParts  `json:"published-print"`
	PublishedWeb   *crossrefDateParts  `json:"published-online"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefDateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// SearchWorks queries the works endpoint with the given filters.
func (c *CrossRefClient) SearchWorks(ctx context.Context, query string, filters map[string]string, sort, order string, rows int) ([]Article, error) {
	params := url.Values{
		"query": {query},
		"sort":  {sort},
		"order": {order},
		"rows":  {strconv.Itoa(rows)},
	}
	if len(filters) > 0 {
		pairs := make([]string, 0, len(filters))
		for k, v := range filters {
			pairs = append(pairs, k+":"+v)
		}
		params.Set("filter", strings.Join(pairs, ","))
	}
	if c.cfg.Mailto != "" {
		params.Set("mailto", c.cfg.Mailto)
	}

	body, err := c.fetcher.getWithRetry(ctx, "crossref-search", c.cfg.BaseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searching crossref for %q: %w", query, err)
	}

	var resp struct {
		Message struct {
			Items []crossrefWork `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding crossref response: %w", err)
	}

	articles := make([]Article, 0, len(resp.Message.Items))
	for _, item := range resp.Message.Items {
		if a, ok := parseCrossRefWork(item); ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

// SearchRecent queries every default term for journal articles published
// within the look-back window, deduplicating by DOI.
func (c *CrossRefClient) SearchRecent(ctx context.Context, daysBack, maxResults int) ([]Article, error) {
	filters := map[string]string{
		"from-pub-date": time.Now().AddDate(0, 0, -daysBack).Format("2006-01-02"),
		"type":          "journal-article",
	}

	rowsPerQuery := maxResults / len(crossrefQueries)
	if rowsPerQuery < 1 {
		rowsPerQuery = 1
	}
	if rowsPerQuery > 20 {
		rowsPerQuery = 20
	}

	var all []Article
	seen := make(map[string]bool)
	for _, query := range crossrefQueries {
		articles, err := c.SearchWorks(ctx, query, filters, "published", "desc", rowsPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			c.logger.Warn("CrossRef query failed", "query", query, "error", err)
			continue
		}
		for _, a := range articles {
			if a.DOI != nil && !seen[*a.DOI] {
				seen[*a.DOI] = true
				all = append(all, a)
			}
		}
		if len(all) >= maxResults {
			break
		}
	}
	if len(all) > maxResults {
		all = all[:maxResults]
	}
	return all, nil
}

// WorkByDOI looks up a single work. Returns (nil, nil) on 404.
func (c *CrossRefClient) WorkByDOI(ctx context.Context, doi string) (*Article, error) {
	params := url.Values{}
	if c.cfg.Mailto != "" {
		params.Set("mailto", c.cfg.Mailto)
	}

	reqURL := c.cfg.BaseURL + "/works/" + url.PathEscape(doi)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	body, err := c.fetcher.getWithRetry(ctx, "crossref-doi", reqURL, nil)
	if err != nil {
		var httpErr *resilience.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching crossref work %s: %w", doi, err)
	}

	var resp struct {
		Message crossrefWork `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding crossref work: %w", err)
	}
	a, ok := parseCrossRefWork(resp.Message)
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// Ping verifies the API is reachable.
func (c *CrossRefClient) Ping(ctx context.Context) error {
	_, err := c.SearchWorks(ctx, "exercise", nil, "relevance", "desc", 1)
	return err
}

func parseCrossRefWork(item crossrefWork) (Article, bool) {
	if item.DOI == "" {
		return Article{}, false
	}

	title := ""
	if len(item.Title) > 0 {
		title = item.Title[0]
	} else if len(item.ContainerTitle) > 0 {
		title = item.ContainerTitle[0]
	}
	if title == "" {
		return Article{}, false
	}

	doi := item.DOI
	a := Article{
		Title:        title,
		DOI:          &doi,
		SourceType:   "crossref",
		CitedByCount: item.CitedByCount,
		Categories:   item.Subject,
	}
	for _, au := range item.Author {
		if au.Family == "" {
			continue
		}
		a.Authors = append(a.Authors, strings.TrimSpace(au.Given+" "+au.Family))
	}
	if item.Abstract != "" {
		abstract := item.Abstract
		a.Abstract = &abstract
	}
	if item.URL != "" {
		u := item.URL
		a.URL = &u
	}
	if len(item.ContainerTitle) > 0 {
		j := item.ContainerTitle[0]
		a.Journal = &j
	}
	a.PublicationDate = parseDateParts(item.PublishedPrint, item.PublishedWeb)
	return a, true
}

// parseDateParts resolves CrossRef's date-parts shape, preferring the print
// date. Incomplete dates default missing month and day to 1; years outside
// the sanity window are dropped.
func parseDateParts(print, online *crossrefDateParts) *time.Time {
	parts := datePartsOf(print)
	if parts == nil {
		parts = datePartsOf(online)
	}
	if len(parts) == 0 {
		return nil
	}

	year := parts[0]
	month, day := 0, 0
	if len(parts) > 1 {
		month = parts[1]
	}
	if len(parts) > 2 {
		day = parts[2]
	}
	t, ok := timeutil.PublicationDate(year, month, day)
	if !ok {
		return nil
	}
	return &t
}

func datePartsOf(d *crossrefDateParts) []int {
	if d == nil || len(d.DateParts) == 0 {
		return nil
	}
	return d.DateParts[0]
}
