package retry

import (
	"sync/atomic"
	"time"
)

// Budget limits retries globally with a token bucket whose capacity adapts to
// the observed request rate: at percent=10, at most one in ten requests may be
// a retry.
type Budget struct {
	tokens     int64 // Available tokens
	maxTokens  int64 // Bucket capacity
	percent    int
	refillRate int64 // Tokens added per second
	lastRefill int64 // Unix timestamp of last refill
	requests   int64 // Requests seen since last refill
}

// NewBudget creates a retry budget. percent is clamped to [1,100].
func NewBudget(percent int) *Budget {
	if percent < 1 {
		percent = 1
	}
	if percent > 100 {
		percent = 100
	}

	// Seed capacity assuming a 1000 req/s baseline until real traffic
	// recalibrates it.
	maxTokens := int64(1000 * percent / 100)

	return &Budget{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		percent:    percent,
		refillRate: maxTokens,
		lastRefill: time.Now().Unix(),
	}
}

// TryConsume attempts to take a token; false means the budget is exhausted
func (b *Budget) TryConsume() bool {
	b.refill()

	for {
		current := atomic.LoadInt64(&b.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.tokens, current, current-1) {
			return true
		}
	}
}

// TrackRequest counts a request toward the adaptive rate calculation
func (b *Budget) TrackRequest() {
	atomic.AddInt64(&b.requests, 1)
}

// Available returns the number of tokens currently in the bucket
func (b *Budget) Available() int64 {
	b.refill()
	return atomic.LoadInt64(&b.tokens)
}

// refill adds tokens for elapsed time and recalibrates capacity to traffic
func (b *Budget) refill() {
	now := time.Now().Unix()
	last := atomic.LoadInt64(&b.lastRefill)

	if now <= last {
		return
	}
	if !atomic.CompareAndSwapInt64(&b.lastRefill, last, now) {
		return // Another goroutine is refilling
	}

	rate := atomic.SwapInt64(&b.requests, 0)
	if rate > 0 {
		adjusted := rate * int64(b.percent) / 100
		if adjusted < 1 {
			adjusted = 1
		}
		atomic.StoreInt64(&b.refillRate, adjusted)
		atomic.StoreInt64(&b.maxTokens, adjusted)
	}

	elapsed := now - last
	toAdd := elapsed * atomic.LoadInt64(&b.refillRate)

	for {
		current := atomic.LoadInt64(&b.tokens)
		next := current + toAdd
		if max := atomic.LoadInt64(&b.maxTokens); next > max {
			next = max
		}
		if atomic.CompareAndSwapInt64(&b.tokens, current, next) {
			return
		}
	}
}
