// Package sources implements the external research harvesters: PubMed,
// CrossRef, journal feeds, a site scraper and LLM-backed search. Every
// client shares the same resilience wrapping: token-bucket rate limiting,
// a per-host circuit breaker and retries with backoff.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fitsci/curator/pkg/resilience"
)

// UserAgent identifies the harvester to upstream APIs.
const UserAgent = "FitnessAI-KnowledgeBot/1.0"

const requestTimeout = 30 * time.Second

// Article is a normalized candidate paper from any source.
type Article struct {
	Title           string
	Authors         []string
	Abstract        *string
	DOI             *string
	PMID            string
	URL             *string
	PublicationDate *time.Time
	Journal         *string
	StudyDesign     *string
	SourceType      string
	CitedByCount    int
	Categories      []string
}

// fetcher performs rate-limited, breaker-guarded, retried HTTP GETs.
type fetcher struct {
	httpClient *http.Client
	limiter    *resilience.AdaptiveLimiter
	breaker    *gobreaker.CircuitBreaker
	retrier    *resilience.Handler
	userAgent  string
}

func newFetcher(name string, rps float64, retrier *resilience.Handler, breakerCfg resilience.BreakerConfig) *fetcher {
	return &fetcher{
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    resilience.NewAdaptiveLimiter(rps, 0.5, rps*2),
		breaker:    resilience.NewBreaker(name, breakerCfg),
		retrier:    retrier,
		userAgent:  UserAgent,
	}
}

// get fetches a URL once through the limiter and breaker.
func (f *fetcher) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := f.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request for %s: %w", url, err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response from %s: %w", url, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			httpErr := &resilience.HTTPError{StatusCode: resp.StatusCode, URL: url}
			if resilience.IsRateLimited(httpErr) {
				f.limiter.ReportRateLimited()
			}
			return nil, httpErr
		}
		f.limiter.ReportSuccess()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// getWithRetry fetches a URL, retrying transient failures per the configured
// retry policy.
func (f *fetcher) getWithRetry(ctx context.Context, taskID, url string, headers map[string]string) ([]byte, error) {
	var body []byte
	err := f.retrier.Do(ctx, taskID, func(ctx context.Context) error {
		var err error
		body, err = f.get(ctx, url, headers)
		return err
	})
	return body, err
}
