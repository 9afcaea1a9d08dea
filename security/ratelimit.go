package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig tunes the keyed limiter used at the HTTP layer. The key is
// the authenticated user id when present, else the source IP.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleEviction      time.Duration
}

// DefaultRateLimitConfig mirrors the production MaintainPro deployment.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		IdleEviction:      10 * time.Minute,
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter maintains one token bucket per key, independent from the
// login-lockout mechanism.
type RateLimiter struct {
	config RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

// NewRateLimiter builds a keyed limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond) * 2
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = 10 * time.Minute
	}
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*keyedLimiter),
	}
}

// Allow reports whether one request under key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	entry, ok := r.limiters[key]
	if !ok {
		entry = &keyedLimiter{
			limiter: rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.Burst),
		}
		r.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	r.mu.Unlock()

	return entry.limiter.Allow()
}

// Sweep evicts buckets idle past the eviction horizon.
func (r *RateLimiter) Sweep() int {
	cutoff := time.Now().Add(-r.config.IdleEviction)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
			removed++
		}
	}
	return removed
}
