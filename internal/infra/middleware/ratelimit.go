// Package middleware holds gateway admission controls. The router itself
// assumes admission has already happened; this is that front door.
package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a token-bucket limit per client key (the
// authenticated client name, not the source IP: gateway clients are
// named principals).
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lastSeen time.Duration // eviction horizon for idle clients
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMin sustained
// requests with the given burst per client. It spawns a janitor that
// evicts idle client buckets; the janitor stops when ctx is done.
func NewRateLimiter(ctx context.Context, requestsPerMin, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
	go rl.janitor(ctx)
	return rl
}

// Allow reports whether the client may proceed with one request.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	cl, ok := rl.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = cl
	}
	cl.seen = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

func (rl *RateLimiter) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.lastSeen)
			rl.mu.Lock()
			for key, cl := range rl.clients {
				if cl.seen.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
