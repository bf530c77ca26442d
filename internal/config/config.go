// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of the defaults.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Storage selects the backend: memory or postgres.
	Storage string `koanf:"storage"`

	// PostgresDSN is required when Storage is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// AutoMigrate creates tables and unique indexes on startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	// SeedFile points at a YAML participant directory loaded on startup.
	SeedFile string `koanf:"seed_file"`

	// AggregationMode is the deployment-wide aggregation: sum or mean.
	AggregationMode string `koanf:"aggregation_mode"`

	// ScoreMin and ScoreMax bound every submitted score (inclusive).
	ScoreMin int `koanf:"score_min"`
	ScoreMax int `koanf:"score_max"`

	// RankingCacheTTLMS enables the scoreboard cache when > 0.
	RankingCacheTTLMS int `koanf:"ranking_cache_ttl_ms"`

	// PublicPollIntervalS and AdminPollIntervalS are advertised to pollers.
	PublicPollIntervalS int `koanf:"public_poll_interval_s"`
	AdminPollIntervalS  int `koanf:"admin_poll_interval_s"`

	// JWTSecret signs judge identity tokens.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTLMinutes bounds identity token lifetime.
	TokenTTLMinutes int `koanf:"token_ttl_minutes"`

	// BcryptCost is the password hashing cost.
	BcryptCost int `koanf:"bcrypt_cost"`

	// ScoreboardRateLimit (req/s) and ScoreboardRateBurst throttle GET /scoreboard
	// per client address. Behind a proxy every viewer shares the proxy's
	// address, so raise the limit there. A zero limit disables throttling.
	ScoreboardRateLimit float64 `koanf:"scoreboard_rate_limit"`
	ScoreboardRateBurst int     `koanf:"scoreboard_rate_burst"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsRefreshIntervalS is how often process gauges are sampled.
	MetricsRefreshIntervalS int `koanf:"metrics_refresh_interval_s"`

	// MetricsBucketsMS overrides latency histogram buckets, e.g. "1,5,25,100".
	MetricsBucketsMS string `koanf:"metrics_buckets_ms"`
}

// New creates a Config with defaults. Context is accepted first to
// follow the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Storage:             StorageMemory,
		AutoMigrate:         true,
		AggregationMode:     "sum",
		ScoreMin:            1,
		ScoreMax:            100,
		RankingCacheTTLMS:   0,
		PublicPollIntervalS: 10,
		AdminPollIntervalS:  30,
		JWTSecret:           "change-me",
		TokenTTLMinutes:     12 * 60,
		BcryptCost:          10,
		ScoreboardRateLimit: 5,
		ScoreboardRateBurst: 20,

		MetricsNamespace:        "judgeboard",
		MetricsSubsystem:        "scoreboard",
		MetricsRefreshIntervalS: 10,
	}
}
