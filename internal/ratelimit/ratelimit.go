package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-route token bucket rate limiters, created lazily the
// first time a route is hit and reconfigured in place on hot reload.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLimiter creates an empty limiter collection
func NewLimiter() *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow checks whether a request is allowed for the given key, updating the
// limiter's rate and burst if the configuration changed.
func (l *Limiter) Allow(key string, rps float64, burst int) bool {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		// Double-check after taking the write lock
		lim, ok = l.limiters[key]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(rps), burst)
			l.limiters[key] = lim
		}
		l.mu.Unlock()
	}

	if lim.Limit() != rate.Limit(rps) {
		lim.SetLimit(rate.Limit(rps))
	}
	if lim.Burst() != burst {
		lim.SetBurst(burst)
	}

	return lim.Allow()
}

// Remove drops the limiter for a key, e.g. when its route disappears
func (l *Limiter) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}
