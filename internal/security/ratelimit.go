package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client key (an IP or a participant id)
// with background eviction of idle entries.
type RateLimiter struct {
	limiters   map[string]*clientLimiter
	mu         sync.Mutex
	r          rate.Limit
	burst      int
	ttl        time.Duration // evict entries not seen within this window
	maxEntries int           // cap on number of tracked clients
	cancel     context.CancelFunc
}

// NewRateLimiter creates a per-client limiter allowing r events per second
// with the given burst.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &RateLimiter{
		limiters:   make(map[string]*clientLimiter),
		r:          r,
		burst:      burst,
		ttl:        10 * time.Minute,
		maxEntries: 10000,
		cancel:     cancel,
	}
	go rl.cleanup(ctx, time.Minute)
	return rl
}

// PerMinute converts a per-minute budget into a rate and burst, the way
// connection limits are configured.
func PerMinute(n int) (rate.Limit, int) {
	if n <= 0 {
		return rate.Inf, 0
	}
	return rate.Limit(float64(n) / 60.0), n
}

// Allow reports whether client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[client]
	if !exists {
		if len(rl.limiters) >= rl.maxEntries {
			rl.mu.Unlock()
			return false // reject to prevent unbounded map growth
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.limiters[client] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop shuts down the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cancel()
}

// UpdateRate changes the rate limit parameters. Existing limiters are
// cleared so they pick up the new rate on next access.
func (rl *RateLimiter) UpdateRate(r rate.Limit, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.r = r
	rl.burst = burst
	rl.limiters = make(map[string]*clientLimiter)
}

func (rl *RateLimiter) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.ttl {
			delete(rl.limiters, client)
		}
	}
}

// NewMessageLimiter returns the per-connection inbound message limiter, or
// nil when perSecond is not positive.
func NewMessageLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}
