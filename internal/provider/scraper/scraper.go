// internal/provider/scraper/scraper.go
package scraper

import (
	"context"
	"sort"
	"sync"
	"time"

	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/common/metrics"
	"poi-aggregator/internal/models"
	"poi-aggregator/internal/provider"
)

const (
	PrimarySourceName   = "scraper"
	SecondarySourceName = "scraper_secondary"

	// tourismSiteSource is the one sub-source that needs a browser.
	tourismSiteSource = "tourism_site"
)

// subSource is one scraped listing source inside the adapter family.
type subSource interface {
	name() string
	weight() float64
	fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, error)
}

// Adapter fans out to its configured sub-sources concurrently. Each
// sub-source throttles itself independently, so a slow or blocked site
// never delays its siblings.
type Adapter struct {
	adapterName string
	sources     []subSource
	logger      logger.Logger
}

// New builds the scraper adapter over the sub-sources matching the
// secondary flag. Primary sub-sources run during the normal fetch
// stage; secondary ones are reserved for the fallback cascade.
func New(cfg config.ProvidersConfig, secondary bool, log logger.Logger) *Adapter {
	adapterName := PrimarySourceName
	if secondary {
		adapterName = SecondarySourceName
	}

	a := &Adapter{
		adapterName: adapterName,
		logger: log.WithFields(map[string]interface{}{
			"source": adapterName,
		}),
	}

	names := make([]string, 0, len(cfg.Sources))
	for name := range cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		srcCfg := cfg.Sources[name]
		if !srcCfg.Enabled || srcCfg.Secondary != secondary {
			continue
		}
		if name == tourismSiteSource {
			a.sources = append(a.sources, newChromeSource(name, srcCfg, cfg.Scraper, log))
		} else {
			a.sources = append(a.sources, newHTTPSource(name, srcCfg, cfg.Scraper, log))
		}
	}
	return a
}

func (a *Adapter) Name() string            { return a.adapterName }
func (a *Adapter) Kind() models.SourceKind { return models.SourceScraped }

// Weight reports the best sub-source weight. Individual records carry
// their own sub-source weights.
func (a *Adapter) Weight() float64 {
	best := 0.0
	for _, src := range a.sources {
		if src.weight() > best {
			best = src.weight()
		}
	}
	return best
}

func (a *Adapter) Fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, provider.Status) {
	if len(a.sources) == 0 {
		return nil, provider.Status{State: provider.StateOk}
	}

	start := time.Now()
	metrics.ProviderRequests.WithLabelValues(a.adapterName).Inc()

	type result struct {
		records []models.CandidateRecord
		err     error
	}

	results := make([]result, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src subSource) {
			defer wg.Done()
			records, err := src.fetch(ctx, query)
			results[i] = result{records: records, err: err}
		}(i, src)
	}
	wg.Wait()

	var records []models.CandidateRecord
	var lastErr error
	succeeded := 0
	for i, res := range results {
		if res.err != nil {
			lastErr = res.err
			a.logger.Warn("sub-source failed", map[string]interface{}{
				"subSource": a.sources[i].name(),
				"error":     res.err.Error(),
			})
			continue
		}
		succeeded++
		records = append(records, res.records...)
	}

	metrics.ProviderFetchDuration.WithLabelValues(a.adapterName).Observe(time.Since(start).Seconds())

	status := provider.Status{Succeeded: succeeded, Attempted: len(a.sources)}
	switch {
	case succeeded == 0:
		status.State = provider.StateFailed
		status.Err = stderrors.NewProviderError(a.adapterName, lastErr)
		metrics.ProviderFailures.WithLabelValues(a.adapterName, string(stderrors.ErrCodeProviderError)).Inc()
	case succeeded < len(a.sources):
		status.State = provider.StatePartialOk
		status.Err = lastErr
	default:
		status.State = provider.StateOk
	}

	a.logger.Info("scrape fetch completed", map[string]interface{}{
		"records":   len(records),
		"succeeded": succeeded,
		"attempted": len(a.sources),
	})
	return records, status
}
