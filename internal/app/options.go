package service

import (
	"time"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses an already opened store instead of building one on Start.
// The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithMemoryStorage keeps all state in process. This is the default.
func WithMemoryStorage() Option {
	return func(s *Service) {
		s.storage = storageMemory
	}
}

// WithPostgres selects the PostgreSQL store. With autoMigrate the schema is
// created or updated on Start.
func WithPostgres(dsn string, autoMigrate bool) Option {
	return func(s *Service) {
		s.storage = storagePostgres
		s.dsn = dsn
		s.autoMigrate = autoMigrate
	}
}

// WithSeedFile loads the participant directory from a YAML file on Start.
func WithSeedFile(path string) Option {
	return func(s *Service) {
		s.seedFile = path
	}
}

// WithAggregationMode sets how judge scores combine into a total.
func WithAggregationMode(mode scoring.Mode) Option {
	return func(s *Service) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithScoreBounds sets the accepted score range.
func WithScoreBounds(min, max int) Option {
	return func(s *Service) {
		if min < max {
			s.bounds = scoring.Bounds{Min: min, Max: max}
		}
	}
}

// WithCacheTTL enables the scoreboard cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheTTL = ttl
	}
}

// WithTokenSigning sets the identity token secret and lifetime.
func WithTokenSigning(secret string, ttl time.Duration) Option {
	return func(s *Service) {
		if secret != "" {
			s.jwtSecret = secret
		}
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithClock overrides time.Now across the domain components.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}
