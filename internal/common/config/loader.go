// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"poi-aggregator/internal/common/validation"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like PRIMARY_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored if not found.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env in the likely run directories before falling back
// to the process environment.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig backfills secrets from the environment when the YAML
// placeholder did not expand.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Providers.PrimaryAPI.APIKey == "" {
		if val := os.Getenv("PRIMARY_API_KEY"); val != "" {
			cfg.Providers.PrimaryAPI.APIKey = val
		}
	}
	if cfg.Providers.Generative.APIKey == "" {
		if val := os.Getenv("GENERATIVE_API_KEY"); val != "" {
			cfg.Providers.Generative.APIKey = val
		}
	}
	if cfg.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Cache defaults: six hours, matching the upstream deployment.
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 360
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 64
	}

	// Provider fan-out defaults
	if cfg.Providers.MaxConcurrent == 0 {
		cfg.Providers.MaxConcurrent = 4
	}
	if cfg.Providers.FetchTimeout == 0 {
		cfg.Providers.FetchTimeout = 20000
	}
	if cfg.Providers.MinResults == 0 {
		cfg.Providers.MinResults = 5
	}
	if cfg.Providers.PrimaryAPI.Timeout == 0 {
		cfg.Providers.PrimaryAPI.Timeout = 5000
	}
	if cfg.Providers.PrimaryAPI.Weight == 0 {
		cfg.Providers.PrimaryAPI.Weight = 1.0
	}
	if cfg.Providers.Scraper.MaxAttempts == 0 {
		cfg.Providers.Scraper.MaxAttempts = 3
	}
	if cfg.Providers.Scraper.Timeout == 0 {
		cfg.Providers.Scraper.Timeout = 10000
	}
	if cfg.Providers.Generative.Timeout == 0 {
		cfg.Providers.Generative.Timeout = 15000
	}
	if cfg.Providers.Generative.Weight == 0 {
		cfg.Providers.Generative.Weight = 0.3
	}
	if cfg.Providers.Generative.MaxVenues == 0 {
		cfg.Providers.Generative.MaxVenues = 5
	}
	if cfg.Providers.Sources == nil {
		cfg.Providers.Sources = defaultScrapeSources()
	}
	for name, src := range cfg.Providers.Sources {
		if src.Weight == 0 {
			src.Weight = 0.6
		}
		if src.MinDelay == 0 {
			src.MinDelay = 2000
		}
		if src.MaxDelay <= src.MinDelay {
			src.MaxDelay = src.MinDelay + 2000
		}
		cfg.Providers.Sources[name] = src
	}

	// Dedup defaults
	if cfg.Dedup.Threshold == 0 {
		cfg.Dedup.Threshold = 0.75
	}
	if cfg.Dedup.NameWeight == 0 && cfg.Dedup.ProximityWeight == 0 && cfg.Dedup.AddressWeight == 0 {
		cfg.Dedup.NameWeight = 0.5
		cfg.Dedup.ProximityWeight = 0.3
		cfg.Dedup.AddressWeight = 0.2
	}
	if cfg.Dedup.ProximitySaturation == 0 {
		cfg.Dedup.ProximitySaturation = 150
	}

	// Scoring defaults
	if cfg.Scoring.Total() == 0 {
		cfg.Scoring = ScoringConfig{
			ReliabilityMax:           25,
			RatingMax:                20,
			CompletenessMax:          20,
			BudgetMax:                15,
			ReviewsMax:               10,
			IndicatorsMax:            10,
			BudgetSlack:              1.2,
			BudgetCompatibleFraction: 0.6,
		}
	}
	if cfg.Scoring.BudgetSlack == 0 {
		cfg.Scoring.BudgetSlack = 1.2
	}
	if cfg.Scoring.BudgetCompatibleFraction == 0 {
		cfg.Scoring.BudgetCompatibleFraction = 0.6
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Worker defaults
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// defaultScrapeSources mirrors the sub-source set and trust weights of the
// upstream deployment: review aggregators highest, generic search lowest.
func defaultScrapeSources() map[string]ScrapeSourceConfig {
	return map[string]ScrapeSourceConfig{
		"review_aggregator": {Enabled: true, Weight: 0.9, MinDelay: 2000, MaxDelay: 4000},
		"tourism_site":      {Enabled: true, Weight: 0.8, MinDelay: 4000, MaxDelay: 6000, Secondary: true},
		"food_blog":         {Enabled: true, Weight: 0.7, MinDelay: 3000, MaxDelay: 5000, Secondary: true},
		"search_engine":     {Enabled: true, Weight: 0.6, MinDelay: 3000, MaxDelay: 5000},
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	if cfg.Dedup.Threshold <= 0 || cfg.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0,1]")
	}
	if cfg.Providers.PrimaryAPI.BaseURL != "" && !validation.ValidateURL(cfg.Providers.PrimaryAPI.BaseURL) {
		return fmt.Errorf("providers.primary_api.base_url is not a valid URL: %q", cfg.Providers.PrimaryAPI.BaseURL)
	}
	for name, src := range cfg.Providers.Sources {
		if src.Enabled && src.BaseURL != "" && !validation.ValidateURL(src.BaseURL) {
			return fmt.Errorf("providers.sources.%s.base_url is not a valid URL: %q", name, src.BaseURL)
		}
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return err
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults.
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled.
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
