// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Redis     RedisConfig             `mapstructure:"redis"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Providers ProvidersConfig         `mapstructure:"providers"`
	Dedup     DedupConfig             `mapstructure:"dedup"`
	Scoring   ScoringConfig           `mapstructure:"scoring"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig drives the result cache lifecycle.
type CacheConfig struct {
	TTL        int `mapstructure:"ttl"`         // minutes
	MaxEntries int `mapstructure:"max_entries"` // process-local layer only
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Provider Configuration ---

// ProvidersConfig holds the fan-out limits and one section per adapter.
type ProvidersConfig struct {
	// MaxConcurrent caps simultaneous outbound adapter calls across a run.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// FetchTimeout is the overall wall-clock budget of the fetch stage,
	// in milliseconds.
	FetchTimeout int `mapstructure:"fetch_timeout"`
	// MinResults is the sufficiency threshold that gates the fallback
	// cascade.
	MinResults int `mapstructure:"min_results"`

	PrimaryAPI PrimaryAPIConfig              `mapstructure:"primary_api"`
	Scraper    ScraperConfig                 `mapstructure:"scraper"`
	Generative GenerativeConfig              `mapstructure:"generative"`
	Sources    map[string]ScrapeSourceConfig `mapstructure:"sources"`
}

type PrimaryAPIConfig struct {
	BaseURL string  `mapstructure:"base_url"`
	APIKey  string  `mapstructure:"api_key"`
	Timeout int     `mapstructure:"timeout"` // milliseconds
	Weight  float64 `mapstructure:"weight"`
}

// ScraperConfig holds the knobs shared by all scraper sub-sources.
type ScraperConfig struct {
	// MaxAttempts bounds the per-page retry loop.
	MaxAttempts int `mapstructure:"max_attempts"`
	Timeout     int `mapstructure:"timeout"` // milliseconds, per sub-source
	// ChromeBinary overrides browser discovery for the tourism-site
	// sub-source; empty means autodetect.
	ChromeBinary string `mapstructure:"chrome_binary"`
}

// ScrapeSourceConfig configures one scraper sub-source.
type ScrapeSourceConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	BaseURL string  `mapstructure:"base_url"`
	Weight  float64 `mapstructure:"weight"`
	// Jittered inter-request delay band, in milliseconds.
	MinDelay int `mapstructure:"min_delay"`
	MaxDelay int `mapstructure:"max_delay"`
	// Secondary sub-sources are only consulted by the fallback cascade.
	Secondary bool `mapstructure:"secondary"`
}

type GenerativeConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Model   string  `mapstructure:"model"`
	APIKey  string  `mapstructure:"api_key"`
	Timeout int     `mapstructure:"timeout"` // milliseconds
	Weight  float64 `mapstructure:"weight"`
	// MaxVenues caps how many venues one generation call may contribute.
	MaxVenues int `mapstructure:"max_venues"`
}

// --- Pipeline Tuning ---

// DedupConfig holds the similarity weights and merge threshold. The
// threshold and weights are empirically tuned; treat them as deployment
// configuration, not constants.
type DedupConfig struct {
	Threshold       float64 `mapstructure:"threshold"`
	NameWeight      float64 `mapstructure:"name_weight"`
	ProximityWeight float64 `mapstructure:"proximity_weight"`
	AddressWeight   float64 `mapstructure:"address_weight"`
	// ProximitySaturation is the distance in meters at which two
	// coordinates count as the same place.
	ProximitySaturation float64 `mapstructure:"proximity_saturation"`
}

// ScoringConfig holds the composite score weights. They must sum to 100.
type ScoringConfig struct {
	ReliabilityMax  float64 `mapstructure:"reliability_max"`
	RatingMax       float64 `mapstructure:"rating_max"`
	CompletenessMax float64 `mapstructure:"completeness_max"`
	BudgetMax       float64 `mapstructure:"budget_max"`
	ReviewsMax      float64 `mapstructure:"reviews_max"`
	IndicatorsMax   float64 `mapstructure:"indicators_max"`
	// BudgetSlack multiplies the requested budget before a venue is
	// considered over it.
	BudgetSlack float64 `mapstructure:"budget_slack"`
	// BudgetCompatibleFraction of BudgetMax at which BudgetCompatible
	// flips true.
	BudgetCompatibleFraction float64 `mapstructure:"budget_compatible_fraction"`
}

// Total returns the sum of the sub-score caps.
func (s ScoringConfig) Total() float64 {
	return s.ReliabilityMax + s.RatingMax + s.CompletenessMax + s.BudgetMax + s.ReviewsMax + s.IndicatorsMax
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Validate checks the cross-field constraints that applyDefaults cannot fix.
func (s ScoringConfig) Validate() error {
	if total := s.Total(); total < 99.5 || total > 100.5 {
		return fmt.Errorf("scoring weights must sum to 100, got %.1f", total)
	}
	return nil
}
