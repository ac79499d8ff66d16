// internal/scoring/scoring.go
package scoring

import (
	"math"
	"sort"
	"strings"

	"poi-aggregator/internal/common/config"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

// kindWeights are the nominal reliability coefficients per source
// class, used for the reliability sub-score after fusion has collapsed
// per-record weights.
var kindWeights = map[models.SourceKind]float64{
	models.SourcePrimaryAPI: 1.0,
	models.SourceScraped:    0.9,
	models.SourceGenerated:  0.3,
	models.SourceEmergency:  0.2,
}

// qualityIndicators are heuristic signals of a notable venue.
var qualityIndicators = []string{
	"米其林", "michelin", "老字号", "招牌", "获奖", "award",
	"推荐", "recommended", "特色", "必吃",
}

// grosslyOverFactor marks the budget multiple beyond which a venue
// earns no budget credit at all.
const grosslyOverFactor = 2.0

// reviewLogCeiling: ten thousand reviews earns the full review bonus.
const reviewLogCeiling = 4.0

// Engine computes the composite quality score and the budget
// compatibility flag for canonical venues.
type Engine struct {
	cfg    config.ScoringConfig
	logger logger.Logger
}

func New(cfg config.ScoringConfig, log logger.Logger) *Engine {
	return &Engine{cfg: cfg, logger: log}
}

// Score attaches QualityScore and BudgetCompatible to the venue. When
// no budget is supplied the budget sub-score is redistributed
// proportionally over the remaining sub-scores, so a budget-less query
// still spans the full 0-100 range.
func (e *Engine) Score(venue *models.CanonicalVenue, budgetPerVenue *float64) {
	score := e.reliabilityScore(venue) +
		e.ratingScore(venue) +
		e.completenessScore(venue) +
		e.reviewScore(venue) +
		e.indicatorScore(venue)

	if budgetPerVenue == nil || *budgetPerVenue <= 0 {
		total := e.cfg.Total()
		if total > e.cfg.BudgetMax {
			score = score * total / (total - e.cfg.BudgetMax)
		}
		venue.BudgetCompatible = true
	} else {
		budgetScore := e.budgetScore(venue, *budgetPerVenue)
		score += budgetScore
		venue.BudgetCompatible = budgetScore >= e.cfg.BudgetCompatibleFraction*e.cfg.BudgetMax
	}

	venue.QualityScore = clamp(score, 0, 100)
}

// ScoreAll scores every venue in place.
func (e *Engine) ScoreAll(venues []models.CanonicalVenue, budgetPerVenue *float64) {
	for i := range venues {
		e.Score(&venues[i], budgetPerVenue)
	}
}

// Rank orders venues by descending quality score, breaking ties by
// review count descending then name ascending, and truncates to max.
func (e *Engine) Rank(venues []models.CanonicalVenue, max int) []models.CanonicalVenue {
	sort.SliceStable(venues, func(i, j int) bool {
		if venues[i].QualityScore != venues[j].QualityScore {
			return venues[i].QualityScore > venues[j].QualityScore
		}
		if venues[i].ReviewCount != venues[j].ReviewCount {
			return venues[i].ReviewCount > venues[j].ReviewCount
		}
		return venues[i].Name < venues[j].Name
	})
	if max > 0 && len(venues) > max {
		venues = venues[:max]
	}
	return venues
}

func (e *Engine) reliabilityScore(venue *models.CanonicalVenue) float64 {
	best := 0.0
	for _, kind := range venue.ContributingSources {
		if w := kindWeights[kind]; w > best {
			best = w
		}
	}
	return best * e.cfg.ReliabilityMax
}

func (e *Engine) ratingScore(venue *models.CanonicalVenue) float64 {
	if venue.Rating == nil {
		return 0
	}
	return clamp(*venue.Rating/5.0, 0, 1) * e.cfg.RatingMax
}

func (e *Engine) completenessScore(venue *models.CanonicalVenue) float64 {
	populated := 0
	if venue.Address != "" {
		populated++
	}
	if venue.Phone != "" {
		populated++
	}
	if venue.BusinessHours != "" {
		populated++
	}
	if len(venue.Tags) > 0 {
		populated++
	}
	if venue.Description != "" {
		populated++
	}
	return float64(populated) / 5.0 * e.cfg.CompletenessMax
}

// budgetScore gives full credit within budget × slack, linear partial
// credit up to grosslyOverFactor × budget, and nothing beyond. An
// unknown price earns half credit rather than a hard zero.
func (e *Engine) budgetScore(venue *models.CanonicalVenue, budget float64) float64 {
	if venue.PriceEstimate == nil {
		return e.cfg.BudgetMax * 0.5
	}
	price := *venue.PriceEstimate
	softLimit := budget * e.cfg.BudgetSlack
	hardLimit := budget * grosslyOverFactor

	switch {
	case price <= softLimit:
		return e.cfg.BudgetMax
	case price >= hardLimit:
		return 0
	default:
		return (hardLimit - price) / (hardLimit - softLimit) * e.cfg.BudgetMax
	}
}

func (e *Engine) reviewScore(venue *models.CanonicalVenue) float64 {
	if venue.ReviewCount <= 0 {
		return 0
	}
	scaled := math.Log10(float64(venue.ReviewCount)+1) / reviewLogCeiling
	return clamp(scaled, 0, 1) * e.cfg.ReviewsMax
}

func (e *Engine) indicatorScore(venue *models.CanonicalVenue) float64 {
	text := strings.ToLower(venue.Name + " " + venue.Description + " " + strings.Join(venue.Tags, " "))
	perMatch := e.cfg.IndicatorsMax / 4
	score := 0.0
	for _, indicator := range qualityIndicators {
		if strings.Contains(text, indicator) {
			score += perMatch
		}
	}
	return clamp(score, 0, e.cfg.IndicatorsMax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
