// internal/provider/scraper/httpsource.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/httpx"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

// userAgents are rotated per request to spread fingerprints.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// httpSource scrapes one plain-HTTP listing source. Each instance
// carries its own rate limiter so sub-sources never throttle each
// other.
type httpSource struct {
	sourceName  string
	cfg         config.ScrapeSourceConfig
	maxAttempts int
	client      *httpx.Client
	limiter     *rate.Limiter
	logger      logger.Logger
}

func newHTTPSource(sourceName string, cfg config.ScrapeSourceConfig, common config.ScraperConfig, log logger.Logger) *httpSource {
	minDelay := time.Duration(cfg.MinDelay) * time.Millisecond
	if minDelay <= 0 {
		minDelay = 2 * time.Second
	}
	return &httpSource{
		sourceName:  sourceName,
		cfg:         cfg,
		maxAttempts: common.MaxAttempts,
		client:      httpx.NewClient(time.Duration(common.Timeout) * time.Millisecond),
		limiter:     rate.NewLimiter(rate.Every(minDelay), 1),
		logger: log.WithFields(map[string]interface{}{
			"source": sourceName,
		}),
	}
}

func (s *httpSource) name() string    { return s.sourceName }
func (s *httpSource) weight() float64 { return s.cfg.Weight }

func (s *httpSource) fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, error) {
	attempts := s.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.throttle(ctx); err != nil {
			return nil, err
		}

		records, err := s.fetchOnce(ctx, query)
		if err == nil {
			return records, nil
		}
		lastErr = err

		var stdErr *stderrors.StandardError
		if errors.As(err, &stdErr) && stdErr.Code == stderrors.ErrCodeScrapeBlocked {
			// A blocked response will not clear inside one run.
			return nil, err
		}

		s.logger.Warn("scrape attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
	return nil, lastErr
}

// throttle waits for the limiter slot plus a random jitter inside the
// configured delay band.
func (s *httpSource) throttle(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	jitterRange := s.cfg.MaxDelay - s.cfg.MinDelay
	if jitterRange <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Intn(jitterRange)) * time.Millisecond
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *httpSource) fetchOnce(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, error) {
	listURL, err := s.buildListURL(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, stderrors.NewScrapeBlockedError(s.sourceName, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s returned %d", s.sourceName, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	text := cleanText(string(body))
	limit := query.MaxResults
	if limit <= 0 {
		limit = 10
	}
	return extractVenues(text, s.sourceName, s.cfg.Weight, limit), nil
}

func (s *httpSource) buildListURL(query models.AggregationQuery) (string, error) {
	baseURL, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%s: parse base url: %w", s.sourceName, err)
	}
	params := url.Values{}
	params.Add("q", query.Destination+" 美食 餐厅 推荐")
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}
