package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTTL is how long a client's bucket survives without requests.
const clientIdleTTL = 5 * time.Minute

// ClientLimiter keeps one token bucket per client address so a busy viewer
// cannot exhaust the budget of everyone else.
type ClientLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewClientLimiter allows rps requests per second per client with the given
// burst. It returns nil when rps is not positive.
func NewClientLimiter(rps float64, burst int, now func() time.Time) *ClientLimiter {
	if rps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &ClientLimiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		now:     now,
		clients: make(map[string]*clientBucket),
	}
}

// Allow spends one token from key's bucket.
func (c *ClientLimiter) Allow(key string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= clientIdleTTL {
		for k, b := range c.clients {
			if now.Sub(b.seen) >= clientIdleTTL {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	b, ok := c.clients[key]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Len reports how many clients currently hold a bucket.
func (c *ClientLimiter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// clientKey is the remote host without its port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
