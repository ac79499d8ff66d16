// internal/aggregator/aggregator_test.go
package aggregator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poi-aggregator/internal/cache"
	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/dedup"
	"poi-aggregator/internal/fusion"
	"poi-aggregator/internal/models"
	"poi-aggregator/internal/provider"
	"poi-aggregator/internal/scoring"
)

// fakeProvider counts its Fetch invocations so tests can prove which
// tiers actually ran.
type fakeProvider struct {
	name    string
	kind    models.SourceKind
	weight  float64
	records []models.CandidateRecord
	status  provider.Status
	calls   int64
}

func (f *fakeProvider) Name() string            { return f.name }
func (f *fakeProvider) Kind() models.SourceKind { return f.kind }
func (f *fakeProvider) Weight() float64         { return f.weight }

func (f *fakeProvider) Fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, provider.Status) {
	atomic.AddInt64(&f.calls, 1)
	return f.records, f.status
}

func (f *fakeProvider) callCount() int64 { return atomic.LoadInt64(&f.calls) }

func okStatus(n int) provider.Status {
	return provider.Status{State: provider.StateOk, Succeeded: n, Attempted: n}
}

func failedStatus(err error) provider.Status {
	return provider.Status{State: provider.StateFailed, Attempted: 1, Err: err}
}

func floatPtr(f float64) *float64 { return &f }

func candidate(name string, kind models.SourceKind, weight float64) models.CandidateRecord {
	return models.CandidateRecord{
		SourceKind: kind,
		SourceName: string(kind),
		Weight:     weight,
		Name:       name,
		FetchedAt:  time.Now(),
	}
}

func newTestEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	log := logger.NewTestLogger(t)
	if deps.Cache == nil {
		deps.Cache = cache.New(config.CacheConfig{TTL: 360, MaxEntries: 8}, nil, log)
	}
	deps.Grouper = dedup.New(config.DedupConfig{
		Threshold:           0.75,
		NameWeight:          0.5,
		ProximityWeight:     0.3,
		AddressWeight:       0.2,
		ProximitySaturation: 150,
	}, log)
	deps.Resolver = fusion.New(log)
	deps.Scorer = scoring.New(config.ScoringConfig{
		ReliabilityMax:           25,
		RatingMax:                20,
		CompletenessMax:          20,
		BudgetMax:                15,
		ReviewsMax:               10,
		IndicatorsMax:            10,
		BudgetSlack:              1.2,
		BudgetCompatibleFraction: 0.6,
	}, log)
	deps.Logger = log

	return New(config.ProvidersConfig{
		MaxConcurrent: 4,
		FetchTimeout:  2000,
		MinResults:    3,
	}, deps)
}

func TestAggregateEmptyDestinationFailsFast(t *testing.T) {
	primary := &fakeProvider{name: "primary_api", kind: models.SourcePrimaryAPI, weight: 1.0}
	engine := newTestEngine(t, Deps{Primary: []provider.Provider{primary}})

	_, err := engine.Aggregate(context.Background(), models.AggregationQuery{Destination: "  "})
	require.Error(t, err)

	var stdErr *stderrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, stderrors.ErrCodeInvalidQuery, stdErr.Code)
	assert.Equal(t, int64(0), primary.callCount(), "validation must precede any network work")
}

func TestAggregateCacheHitSkipsProviders(t *testing.T) {
	primary := &fakeProvider{
		name: "primary_api", kind: models.SourcePrimaryAPI, weight: 1.0,
		records: []models.CandidateRecord{
			candidate("全聚德烤鸭店", models.SourcePrimaryAPI, 1.0),
			candidate("南门涮肉", models.SourcePrimaryAPI, 1.0),
			candidate("东来顺饭庄", models.SourcePrimaryAPI, 1.0),
		},
		status: okStatus(1),
	}
	engine := newTestEngine(t, Deps{Primary: []provider.Provider{primary}})
	query := models.AggregationQuery{Destination: "北京", MaxResults: 10}

	first, err := engine.Aggregate(context.Background(), query)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	require.Equal(t, int64(1), primary.callCount())

	second, err := engine.Aggregate(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), primary.callCount(), "a cache hit makes zero adapter invocations")
}

func TestAggregateAllProvidersFailYieldsLowConfidenceList(t *testing.T) {
	down := stderrors.NewProviderError("primary_api", context.DeadlineExceeded)
	primary := &fakeProvider{name: "primary_api", kind: models.SourcePrimaryAPI, weight: 1.0, status: failedStatus(down)}
	secondary := &fakeProvider{name: "scraper_secondary", kind: models.SourceScraped, weight: 0.8, status: failedStatus(down)}
	generative := &fakeProvider{name: "generative", kind: models.SourceGenerated, weight: 0.3, status: failedStatus(down)}

	engine := newTestEngine(t, Deps{
		Primary:    []provider.Provider{primary},
		Secondary:  secondary,
		Generative: generative,
	})

	venues, err := engine.Aggregate(context.Background(), models.AggregationQuery{Destination: "拉萨"})
	require.NoError(t, err)
	require.NotEmpty(t, venues, "a well-formed query never yields an empty list")
	for _, venue := range venues {
		assert.True(t, venue.LowConfidence(), "emergency placeholders must read as low confidence: %s", venue.Name)
	}
	assert.Equal(t, int64(1), secondary.callCount(), "every tier is consulted before the emergency list")
	assert.Equal(t, int64(1), generative.callCount())
}

func TestAggregateFallbackStopsOnceSufficient(t *testing.T) {
	primary := &fakeProvider{
		name: "primary_api", kind: models.SourcePrimaryAPI, weight: 1.0,
		records: []models.CandidateRecord{candidate("全聚德烤鸭店", models.SourcePrimaryAPI, 1.0)},
		status:  okStatus(1),
	}
	secondary := &fakeProvider{
		name: "scraper_secondary", kind: models.SourceScraped, weight: 0.8,
		records: []models.CandidateRecord{
			candidate("南门涮肉", models.SourceScraped, 0.8),
			candidate("东来顺饭庄", models.SourceScraped, 0.8),
		},
		status: okStatus(2),
	}
	generative := &fakeProvider{name: "generative", kind: models.SourceGenerated, weight: 0.3, status: okStatus(0)}

	engine := newTestEngine(t, Deps{
		Primary:    []provider.Provider{primary},
		Secondary:  secondary,
		Generative: generative,
	})

	venues, err := engine.Aggregate(context.Background(), models.AggregationQuery{Destination: "北京"})
	require.NoError(t, err)
	assert.Len(t, venues, 3)
	assert.Equal(t, int64(1), secondary.callCount(), "one candidate is below the minimum, so the cascade widens")
	assert.Equal(t, int64(0), generative.callCount(), "sufficiency reached before the generative tier")
}

func TestAggregateMergesAcrossProviders(t *testing.T) {
	coords := &models.LatLng{Lat: 39.9165, Lng: 116.3971}
	nearby := &models.LatLng{Lat: 39.9166, Lng: 116.3972}

	primary := &fakeProvider{
		name: "primary_api", kind: models.SourcePrimaryAPI, weight: 1.0,
		records: []models.CandidateRecord{
			{
				SourceKind: models.SourcePrimaryAPI, SourceName: "primary_api", Weight: 1.0,
				ExternalID: "B001", Name: "全聚德烤鸭店", Address: "前门大街30号",
				Coordinates: coords, Rating: floatPtr(4.5), ReviewCount: 8000,
				Phone: "010-67021234", FetchedAt: time.Now(),
			},
			candidate("南门涮肉", models.SourcePrimaryAPI, 1.0),
			candidate("东来顺饭庄", models.SourcePrimaryAPI, 1.0),
		},
		status: okStatus(1),
	}
	scraper := &fakeProvider{
		name: "scraper", kind: models.SourceScraped, weight: 0.9,
		records: []models.CandidateRecord{
			{
				SourceKind: models.SourceScraped, SourceName: "review_aggregator", Weight: 0.9,
				Name: "全聚德烤鸭店(前门店)", Address: "前门大街30号",
				Coordinates: nearby, Rating: floatPtr(4.6), ReviewCount: 12000,
				Description: "百年老字号烤鸭店", FetchedAt: time.Now(),
			},
		},
		status: okStatus(1),
	}

	engine := newTestEngine(t, Deps{Primary: []provider.Provider{primary, scraper}})

	venues, err := engine.Aggregate(context.Background(), models.AggregationQuery{Destination: "北京"})
	require.NoError(t, err)
	require.Len(t, venues, 3, "the overlapping pair fuses into one canonical venue")

	var roast *models.CanonicalVenue
	seen := map[string]bool{}
	for i := range venues {
		require.False(t, seen[venues[i].ID], "canonical ids must be unique within a result")
		seen[venues[i].ID] = true
		if venues[i].Name == "全聚德烤鸭店" {
			roast = &venues[i]
		}
	}
	require.NotNil(t, roast)
	assert.Equal(t, "010-67021234", roast.Phone)
	assert.Equal(t, 12000, roast.ReviewCount)
	assert.Equal(t, []models.SourceKind{models.SourcePrimaryAPI, models.SourceScraped}, roast.ContributingSources)
	assert.Equal(t, venues[0].Name, "全聚德烤鸭店", "the fused multi-source venue outranks the singletons")
}

func TestAggregateTruncatesToMaxResults(t *testing.T) {
	records := []models.CandidateRecord{
		candidate("店甲餐厅", models.SourcePrimaryAPI, 1.0),
		candidate("店乙餐厅", models.SourcePrimaryAPI, 1.0),
		candidate("店丙餐厅", models.SourcePrimaryAPI, 1.0),
		candidate("店丁餐厅", models.SourcePrimaryAPI, 1.0),
	}
	primary := &fakeProvider{name: "primary_api", kind: models.SourcePrimaryAPI, weight: 1.0, records: records, status: okStatus(1)}
	engine := newTestEngine(t, Deps{Primary: []provider.Provider{primary}})

	venues, err := engine.Aggregate(context.Background(), models.AggregationQuery{Destination: "北京", MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, venues, 2)
	assert.True(t, venues[0].QualityScore >= venues[1].QualityScore)
}
