// internal/workers/aggregate-poi/config.go
package aggregatepoi

import (
	"time"

	"poi-aggregator/internal/common/config"
)

type Config struct {
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig(cfg config.WorkerConfig) *Config {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = config.GetDuration(cfg.Timeout)
	}
	return &Config{
		Timeout:    timeout,
		MaxRetries: cfg.MaxRetries,
	}
}
