// internal/aggregator/aggregator.go
package aggregator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"poi-aggregator/internal/cache"
	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/common/metrics"
	"poi-aggregator/internal/dedup"
	"poi-aggregator/internal/fusion"
	"poi-aggregator/internal/models"
	"poi-aggregator/internal/provider"
	"poi-aggregator/internal/scoring"
)

const defaultMaxResults = 10

// fallbackTier is one rung of the cascade. fetch receives the
// candidates gathered so far and returns only the additional ones, so
// each tier stays independently testable.
type fallbackTier struct {
	name  string
	fetch func(ctx context.Context, query models.AggregationQuery, have []models.CandidateRecord) []models.CandidateRecord
}

// Deps collects the collaborators an Engine drives. Secondary and
// Generative may be nil, their tiers are then skipped.
type Deps struct {
	Primary    []provider.Provider
	Secondary  provider.Provider
	Generative provider.Provider
	Cache      *cache.ResultCache
	Grouper    *dedup.Grouper
	Resolver   *fusion.Resolver
	Scorer     *scoring.Engine
	Logger     logger.Logger
}

// Engine drives the full aggregation pipeline: cache check, bounded
// provider fan-out, fallback cascade, dedup, fusion, scoring, ranking
// and cache population.
type Engine struct {
	cfg      config.ProvidersConfig
	primary  []provider.Provider
	tiers    []fallbackTier
	cache    *cache.ResultCache
	grouper  *dedup.Grouper
	resolver *fusion.Resolver
	scorer   *scoring.Engine
	logger   logger.Logger
}

func New(cfg config.ProvidersConfig, deps Deps) *Engine {
	e := &Engine{
		cfg:      cfg,
		primary:  deps.Primary,
		cache:    deps.Cache,
		grouper:  deps.Grouper,
		resolver: deps.Resolver,
		scorer:   deps.Scorer,
		logger:   deps.Logger,
	}

	if deps.Secondary != nil {
		e.tiers = append(e.tiers, fallbackTier{
			name:  "secondary_scrapers",
			fetch: providerTier(deps.Secondary, deps.Logger),
		})
	}
	if deps.Generative != nil {
		e.tiers = append(e.tiers, fallbackTier{
			name:  "generative",
			fetch: providerTier(deps.Generative, deps.Logger),
		})
	}
	return e
}

// Aggregate validates the query, serves it from the cache when
// possible and otherwise runs the pipeline once, no matter how many
// callers ask for the same fingerprint concurrently.
func (e *Engine) Aggregate(ctx context.Context, query models.AggregationQuery) ([]models.CanonicalVenue, error) {
	if strings.TrimSpace(query.Destination) == "" {
		return nil, stderrors.NewInvalidQueryError("destination must not be empty")
	}
	if query.MaxResults <= 0 {
		query.MaxResults = defaultMaxResults
	}

	key := query.Fingerprint()
	log := e.logger.WithFields(map[string]interface{}{
		"run_id":      uuid.NewString(),
		"destination": query.Destination,
		"cache_key":   key,
	})

	if venues, ok := e.cache.Get(ctx, key); ok {
		metrics.AggregationRuns.WithLabelValues("cache_hit").Inc()
		log.Debug("Serving aggregation from cache", nil)
		return venues, nil
	}

	start := time.Now()
	venues, err := e.cache.Do(ctx, key, func(ctx context.Context) ([]models.CanonicalVenue, error) {
		return e.run(ctx, query, log)
	})
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.AggregationRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.AggregationRuns.WithLabelValues("completed").Inc()
	metrics.AggregationResultCount.Observe(float64(len(venues)))
	log.Info("Aggregation completed", map[string]interface{}{
		"venues":      len(venues),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return venues, nil
}

// run executes one full pipeline pass for a validated query.
func (e *Engine) run(ctx context.Context, query models.AggregationQuery, log logger.Logger) ([]models.CanonicalVenue, error) {
	candidates := e.fetchPrimary(ctx, query, log)

	for _, tier := range e.tiers {
		if len(candidates) >= e.cfg.MinResults {
			break
		}
		metrics.FallbackActivations.WithLabelValues(tier.name).Inc()
		log.Info("Activating fallback tier", map[string]interface{}{
			"tier":       tier.name,
			"candidates": len(candidates),
			"minimum":    e.cfg.MinResults,
		})
		candidates = append(candidates, tier.fetch(ctx, query, candidates)...)
	}

	if len(candidates) == 0 {
		metrics.FallbackActivations.WithLabelValues("emergency").Inc()
		log.Warn("All provider tiers empty, emitting emergency placeholders", nil)
		candidates = emergencyCandidates(query)
	}
	if len(candidates) == 0 {
		return nil, stderrors.NewAggregationUnavailableError("no provider tier produced any candidate")
	}

	groups := e.grouper.Group(candidates)
	venues := make([]models.CanonicalVenue, 0, len(groups))
	for _, group := range groups {
		venues = append(venues, e.resolver.Resolve(group))
	}

	e.scorer.ScoreAll(venues, query.BudgetPerVenue)
	return e.scorer.Rank(venues, query.MaxResults), nil
}

// fetchPrimary fans out to the primary providers under the configured
// concurrency cap and the overall fetch budget. Provider failures are
// logged and absorbed.
func (e *Engine) fetchPrimary(ctx context.Context, query models.AggregationQuery, log logger.Logger) []models.CandidateRecord {
	if len(e.primary) == 0 {
		return nil
	}

	fetchCtx := ctx
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.FetchTimeout)*time.Millisecond)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(fetchCtx)
	if e.cfg.MaxConcurrent > 0 {
		g.SetLimit(e.cfg.MaxConcurrent)
	}

	results := make([][]models.CandidateRecord, len(e.primary))
	for i, p := range e.primary {
		i, p := i, p
		g.Go(func() error {
			records, status := p.Fetch(gctx, query)
			if status.Err != nil {
				log.WithError(status.Err).Warn("Provider finished with errors", map[string]interface{}{
					"provider":  p.Name(),
					"state":     string(status.State),
					"succeeded": status.Succeeded,
					"attempted": status.Attempted,
				})
			}
			results[i] = records
			return nil
		})
	}
	_ = g.Wait()

	var all []models.CandidateRecord
	for _, records := range results {
		all = append(all, records...)
	}
	return all
}

// providerTier wraps a provider as a cascade tier.
func providerTier(p provider.Provider, log logger.Logger) func(context.Context, models.AggregationQuery, []models.CandidateRecord) []models.CandidateRecord {
	return func(ctx context.Context, query models.AggregationQuery, _ []models.CandidateRecord) []models.CandidateRecord {
		records, status := p.Fetch(ctx, query)
		if status.Err != nil {
			log.WithError(status.Err).Warn("Fallback tier finished with errors", map[string]interface{}{
				"provider": p.Name(),
				"state":    string(status.State),
			})
		}
		return records
	}
}

// emergencyCandidates is the last rung of the cascade: a fixed list of
// generic category placeholders so a well-formed query never yields an
// empty result.
func emergencyCandidates(query models.AggregationQuery) []models.CandidateRecord {
	now := time.Now()
	placeholders := []struct {
		name      string
		priceBand string
		tags      []string
	}{
		{"当地特色餐厅", "mid-range", []string{"当地美食"}},
		{"人气美食街", "budget", []string{"小吃", "街边美食"}},
		{"老城区小吃集市", "budget", []string{"小吃"}},
		{"城市咖啡馆", "mid-range", []string{"咖啡", "轻食"}},
		{"精品餐厅", "high-end", []string{"精致餐饮"}},
	}

	records := make([]models.CandidateRecord, 0, len(placeholders))
	for _, p := range placeholders {
		records = append(records, models.CandidateRecord{
			SourceKind:  models.SourceEmergency,
			SourceName:  "emergency",
			Weight:      0.2,
			Name:        query.Destination + p.name,
			PriceBand:   p.priceBand,
			Tags:        p.tags,
			Description: "基于目的地的通用推荐，建议抵达后向当地人核实具体店铺。",
			FetchedAt:   now,
		})
	}
	return records
}
