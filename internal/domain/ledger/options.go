package ledger

import (
	"time"

	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithBounds sets the accepted score range.
func WithBounds(b scoring.Bounds) Option {
	return func(l *Ledger) {
		if b.Min < b.Max {
			l.bounds = b
		}
	}
}

// WithClock overrides time.Now for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the ledger's logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.logger = log
		}
	}
}
