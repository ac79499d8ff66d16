// internal/provider/scraper/chromesource.go
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"poi-aggregator/internal/common/config"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

// chromeSource scrapes the tourism-site sub-source through a headless
// browser. Tourism portals render their dining sections client-side,
// so a plain GET returns an empty shell.
type chromeSource struct {
	sourceName string
	cfg        config.ScrapeSourceConfig
	common     config.ScraperConfig
	logger     logger.Logger
}

func newChromeSource(sourceName string, cfg config.ScrapeSourceConfig, common config.ScraperConfig, log logger.Logger) *chromeSource {
	return &chromeSource{
		sourceName: sourceName,
		cfg:        cfg,
		common:     common,
		logger: log.WithFields(map[string]interface{}{
			"source": sourceName,
		}),
	}
}

func (s *chromeSource) name() string    { return s.sourceName }
func (s *chromeSource) weight() float64 { return s.cfg.Weight }

func (s *chromeSource) fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, error) {
	chromeBin := s.common.ChromeBinary
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	if chromeBin == "" {
		return nil, fmt.Errorf("%s: no chrome binary available", s.sourceName)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.ExecPath(chromeBin),
		chromedp.UserAgent(userAgents[0]),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	timeout := time.Duration(s.common.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	pageURL, err := s.buildPageURL(query)
	if err != nil {
		return nil, err
	}

	var pageText string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`
			(function() {
				var selectors = ['.content', '.post-content', '.article-content', 'article', 'main', 'body'];
				for (var i = 0; i < selectors.length; i++) {
					var el = document.querySelector(selectors[i]);
					if (el && el.innerText && el.innerText.length > 100) {
						return el.innerText;
					}
				}
				return document.body ? document.body.innerText : '';
			})()
		`, &pageText),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: render page: %w", s.sourceName, err)
	}

	limit := query.MaxResults
	if limit <= 0 {
		limit = 10
	}
	records := extractVenues(cleanText(pageText), s.sourceName, s.cfg.Weight, limit)

	s.logger.Debug("tourism page extracted", map[string]interface{}{
		"url":     pageURL,
		"records": len(records),
	})
	return records, nil
}

func (s *chromeSource) buildPageURL(query models.AggregationQuery) (string, error) {
	baseURL, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%s: parse base url: %w", s.sourceName, err)
	}
	params := url.Values{}
	params.Add("destination", query.Destination)
	params.Add("section", "dining")
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
