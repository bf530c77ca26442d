package registration

import (
	"time"

	"github.com/okian/judgeboard/pkg/logger"
)

// Option applies a configuration option to the Registrar.
type Option func(*Registrar)

// WithClock overrides time.Now for the created stamp.
func WithClock(now func() time.Time) Option {
	return func(r *Registrar) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides uuid-based judge ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registrar) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithLogger sets the registrar's logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Registrar) {
		if log != nil {
			r.logger = log
		}
	}
}
