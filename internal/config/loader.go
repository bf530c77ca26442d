package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "JUDGEBOARD_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if JUDGEBOARD_CONFIG is set
//  3. env (prefix JUDGEBOARD_), optionally seeded from the .env file named by
//     JUDGEBOARD_DOTENV
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	// godotenv never overrides variables that are already set.
	if path := os.Getenv(envPrefix + "DOTENV"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, path, err)
		}
	}

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// JUDGEBOARD_SCORE_MAX -> score_max (flat keys, underscores kept).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.AggregationMode != "sum" && c.AggregationMode != "mean":
		return fmt.Errorf("%w: aggregation_mode must be sum or mean, got %q", ErrInvalidConfig, c.AggregationMode)
	case c.ScoreMin >= c.ScoreMax:
		return fmt.Errorf("%w: score_min (%d) must be below score_max (%d)", ErrInvalidConfig, c.ScoreMin, c.ScoreMax)
	case c.RankingCacheTTLMS < 0:
		return fmt.Errorf("%w: ranking_cache_ttl_ms must not be negative", ErrInvalidConfig)
	case c.PublicPollIntervalS <= 0:
		return fmt.Errorf("%w: public_poll_interval_s must be positive", ErrInvalidConfig)
	case c.RankingCacheTTLMS > c.PublicPollIntervalS*1000:
		return fmt.Errorf("%w: ranking_cache_ttl_ms must not exceed the public poll interval", ErrInvalidConfig)
	case c.Storage != StorageMemory && c.Storage != StoragePostgres:
		return fmt.Errorf("%w: storage must be memory or postgres, got %q", ErrInvalidConfig, c.Storage)
	case c.Storage == StoragePostgres && c.PostgresDSN == "":
		return fmt.Errorf("%w: postgres_dsn is required for postgres storage", ErrInvalidConfig)
	case c.JWTSecret == "":
		return fmt.Errorf("%w: jwt_secret must not be empty", ErrInvalidConfig)
	case c.TokenTTLMinutes <= 0:
		return fmt.Errorf("%w: token_ttl_minutes must be positive", ErrInvalidConfig)
	case c.ScoreboardRateLimit < 0:
		return fmt.Errorf("%w: scoreboard_rate_limit must not be negative", ErrInvalidConfig)
	case c.MetricsRefreshIntervalS <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval_s must be positive", ErrInvalidConfig)
	}
	return nil
}
