// internal/provider/generative/generative.go
package generative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/common/metrics"
	"poi-aggregator/internal/models"
	"poi-aggregator/internal/provider"
)

const SourceName = "generative"

// Adapter produces plausible but unverified venues. It is consulted
// only when the verified sources under-deliver, and its records are
// never treated as authoritative for contact or location fields.
type Adapter struct {
	cfg    config.GenerativeConfig
	model  llms.Model
	logger logger.Logger
}

// New wires the language model client when one is configured. Without
// an API key the adapter still works, serving template venues only.
func New(cfg config.GenerativeConfig, log logger.Logger) *Adapter {
	a := &Adapter{
		cfg: cfg,
		logger: log.WithFields(map[string]interface{}{
			"source": SourceName,
		}),
	}
	if cfg.Enabled && cfg.APIKey != "" {
		model, err := openai.New(
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		)
		if err != nil {
			a.logger.Warn("llm client init failed, using templates only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			a.model = model
		}
	}
	return a
}

// NewWithModel injects a prebuilt model. Used by tests.
func NewWithModel(cfg config.GenerativeConfig, model llms.Model, log logger.Logger) *Adapter {
	return &Adapter{
		cfg:   cfg,
		model: model,
		logger: log.WithFields(map[string]interface{}{
			"source": SourceName,
		}),
	}
}

func (a *Adapter) Name() string            { return SourceName }
func (a *Adapter) Kind() models.SourceKind { return models.SourceGenerated }
func (a *Adapter) Weight() float64         { return a.cfg.Weight }

func (a *Adapter) Fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, provider.Status) {
	metrics.ProviderRequests.WithLabelValues(SourceName).Inc()
	start := time.Now()
	defer func() {
		metrics.ProviderFetchDuration.WithLabelValues(SourceName).Observe(time.Since(start).Seconds())
	}()

	if a.model != nil {
		records, err := a.generate(ctx, query)
		if err == nil && len(records) > 0 {
			return records, provider.Status{State: provider.StateOk, Succeeded: 1, Attempted: 1}
		}
		if err != nil {
			a.logger.Warn("generation failed, using template venues", map[string]interface{}{
				"error": err.Error(),
			})
			metrics.ProviderFailures.WithLabelValues(SourceName, string(stderrors.ErrCodeGenerationFailed)).Inc()
			return a.templateVenues(query), provider.Status{
				State:     provider.StatePartialOk,
				Succeeded: 1,
				Attempted: 2,
				Err:       stderrors.NewGenerationFailedError(err),
			}
		}
	}

	return a.templateVenues(query), provider.Status{State: provider.StateOk, Succeeded: 1, Attempted: 1}
}

func (a *Adapter) generate(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, error) {
	timeout := time.Duration(a.cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	count := a.maxVenues()
	prompt := buildPrompt(query, count)

	completion, err := llms.GenerateFromSinglePrompt(genCtx, a.model, prompt,
		llms.WithTemperature(0.7),
	)
	if err != nil {
		return nil, err
	}

	venues, err := parseCompletion(completion)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	records := make([]models.CandidateRecord, 0, len(venues))
	for _, v := range venues {
		if len(records) >= count {
			break
		}
		name := strings.TrimSpace(v.Name)
		if name == "" {
			continue
		}
		rec := models.CandidateRecord{
			SourceKind:  models.SourceGenerated,
			SourceName:  SourceName,
			Weight:      a.cfg.Weight,
			Name:        name,
			Description: strings.TrimSpace(v.Description),
			Tags:        v.Specialties,
			FetchedAt:   now,
		}
		if v.Rating > 0 {
			rating := clampRating(v.Rating)
			rec.Rating = &rating
		}
		if v.EstimatedCost > 0 {
			cost := v.EstimatedCost
			rec.PriceEstimate = &cost
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("completion contained no usable venues")
	}
	return records, nil
}

type generatedVenue struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Rating        float64  `json:"rating"`
	EstimatedCost float64  `json:"estimated_cost"`
	Specialties   []string `json:"specialties"`
}

func buildPrompt(query models.AggregationQuery, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "List %d real, well-known dining venues in %s.\n", count, query.Destination)
	if query.BudgetPerVenue != nil {
		fmt.Fprintf(&b, "Target budget per person: %.0f.\n", *query.BudgetPerVenue)
	}
	b.WriteString(`Respond with a JSON array only, no prose. Each element: ` +
		`{"name": string, "description": string, "rating": number 0-5, ` +
		`"estimated_cost": number, "specialties": [string]}`)
	return b.String()
}

// parseCompletion tolerates code fences and leading prose around the
// JSON array.
func parseCompletion(completion string) ([]generatedVenue, error) {
	text := strings.TrimSpace(completion)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in completion")
	}

	var venues []generatedVenue
	if err := json.Unmarshal([]byte(text[start:end+1]), &venues); err != nil {
		return nil, fmt.Errorf("parse completion: %w", err)
	}
	return venues, nil
}

// templateVenues produces the deterministic venue shapes every
// destination has, used when no model is available or generation
// fails.
func (a *Adapter) templateVenues(query models.AggregationQuery) []models.CandidateRecord {
	base := 60.0
	if query.BudgetPerVenue != nil && *query.BudgetPerVenue > 0 {
		base = *query.BudgetPerVenue
	}
	dest := query.Destination
	now := time.Now()

	templates := []struct {
		name        string
		description string
		rating      float64
		cost        float64
		band        string
		tags        []string
	}{
		{
			name:        dest + "老字号餐厅",
			description: dest + "历史悠久的传统餐厅，以地道的本地菜闻名。",
			rating:      4.3,
			cost:        base * 0.8,
			band:        "mid-range",
			tags:        []string{"传统地方菜", "招牌菜"},
		},
		{
			name:        dest + "特色小吃街",
			description: dest + "著名的小吃聚集地，汇集了各种当地特色小吃。",
			rating:      4.1,
			cost:        base * 0.4,
			band:        "budget",
			tags:        []string{"当地小吃", "街头美食"},
		},
		{
			name:        dest + "精品餐厅",
			description: dest + "高端餐厅，提供精致的料理和优雅的用餐环境。",
			rating:      4.6,
			cost:        base * 1.5,
			band:        "high-end",
			tags:        []string{"精致料理", "创意菜品"},
		},
	}

	count := a.maxVenues()
	if count > len(templates) {
		count = len(templates)
	}

	records := make([]models.CandidateRecord, 0, count)
	for _, tpl := range templates[:count] {
		rating := tpl.rating
		cost := tpl.cost
		records = append(records, models.CandidateRecord{
			SourceKind:    models.SourceGenerated,
			SourceName:    SourceName,
			Weight:        a.cfg.Weight,
			Name:          tpl.name,
			Description:   tpl.description,
			Rating:        &rating,
			PriceEstimate: &cost,
			PriceBand:     tpl.band,
			Tags:          tpl.tags,
			FetchedAt:     now,
		})
	}
	return records
}

func (a *Adapter) maxVenues() int {
	if a.cfg.MaxVenues > 0 {
		return a.cfg.MaxVenues
	}
	return 5
}

func clampRating(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}
