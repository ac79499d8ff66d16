// internal/provider/primaryapi/primaryapi.go
package primaryapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/httpx"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/common/metrics"
	"poi-aggregator/internal/common/validation"
	"poi-aggregator/internal/models"
	"poi-aggregator/internal/provider"
)

const SourceName = "primary_api"

// searchKeywords are the category passes run against the POI service.
// Each pass returns a different slice of the venue space; results are
// deduplicated by external id before emitting.
var searchKeywords = []string{"餐厅", "美食", "小吃"}

// Adapter queries the structured geo/POI service. It is the highest
// trust source and the only one that returns exact coordinates and
// stable external identifiers.
type Adapter struct {
	cfg    config.PrimaryAPIConfig
	client *httpx.Client
	logger logger.Logger
}

func New(cfg config.PrimaryAPIConfig, log logger.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: httpx.NewClient(time.Duration(cfg.Timeout) * time.Millisecond),
		logger: log.WithFields(map[string]interface{}{
			"source": SourceName,
		}),
	}
}

func (a *Adapter) Name() string            { return SourceName }
func (a *Adapter) Kind() models.SourceKind { return models.SourcePrimaryAPI }
func (a *Adapter) Weight() float64         { return a.cfg.Weight }

func (a *Adapter) Fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, provider.Status) {
	start := time.Now()
	metrics.ProviderRequests.WithLabelValues(SourceName).Inc()

	seen := make(map[string]bool)
	var records []models.CandidateRecord
	var lastErr error
	attempted := 0
	succeeded := 0

	for _, keyword := range searchKeywords {
		attempted++
		batch, err := a.search(ctx, query, keyword)
		if err != nil {
			lastErr = err
			a.logger.Warn("search pass failed", map[string]interface{}{
				"keyword": keyword,
				"error":   err.Error(),
			})
			if isTimeout(ctx, err) {
				// The service will not recover inside this run's
				// budget; stop burning the remaining passes.
				break
			}
			continue
		}
		succeeded++

		for _, rec := range batch {
			key := rec.ExternalID
			if key == "" {
				key = rec.Name + "|" + rec.Address
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, rec)
		}
	}

	metrics.ProviderFetchDuration.WithLabelValues(SourceName).Observe(time.Since(start).Seconds())

	status := provider.Status{Succeeded: succeeded, Attempted: attempted}
	switch {
	case succeeded == 0:
		status.State = provider.StateFailed
		if isTimeout(ctx, lastErr) {
			status.Err = stderrors.NewProviderTimeoutError(SourceName)
			metrics.ProviderFailures.WithLabelValues(SourceName, string(stderrors.ErrCodeProviderTimeout)).Inc()
		} else {
			status.Err = stderrors.NewProviderError(SourceName, lastErr)
			metrics.ProviderFailures.WithLabelValues(SourceName, string(stderrors.ErrCodeProviderError)).Inc()
		}
	case succeeded < attempted:
		status.State = provider.StatePartialOk
		status.Err = lastErr
	default:
		status.State = provider.StateOk
	}

	a.logger.Info("primary api fetch completed", map[string]interface{}{
		"records":   len(records),
		"succeeded": succeeded,
		"attempted": attempted,
	})
	return records, status
}

func (a *Adapter) search(ctx context.Context, query models.AggregationQuery, keyword string) ([]models.CandidateRecord, error) {
	searchURL, err := a.buildSearchURL(query, keyword)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poi service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidatePOIResponse(body); err != nil {
		return nil, err
	}

	return parseResponse(body, a.cfg.Weight), nil
}

func (a *Adapter) buildSearchURL(query models.AggregationQuery, keyword string) (string, error) {
	baseURL, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	params := url.Values{}
	params.Add("key", a.cfg.APIKey)
	params.Add("city", query.Destination)
	params.Add("keywords", keyword)
	if query.Coordinates != nil {
		params.Add("location", fmt.Sprintf("%f,%f", query.Coordinates.Lng, query.Coordinates.Lat))
	}
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() == context.DeadlineExceeded ||
		strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "deadline") ||
		strings.Contains(err.Error(), "Client.Timeout")
}
