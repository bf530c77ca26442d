package ranking

import "time"

// Option applies a configuration option to the View.
type Option func(*View)

// WithCacheTTL enables the board cache. Zero or negative keeps it off.
func WithCacheTTL(ttl time.Duration) Option {
	return func(v *View) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}
