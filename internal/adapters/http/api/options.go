package api

import (
	"time"

	"github.com/okian/judgeboard/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimit bounds public scoreboard polls with one token bucket per
// client address. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = NewClientLimiter(rps, burst, nil)
	}
}

// WithPollIntervals advertises how often public and admin clients should
// poll, via the X-Poll-Interval header.
func WithPollIntervals(public, admin time.Duration) Option {
	return func(s *Server) {
		if public > 0 {
			s.publicPoll = public
		}
		if admin > 0 {
			s.adminPoll = admin
		}
	}
}

// WithClock overrides time.Now for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.logger = log
		}
	}
}
