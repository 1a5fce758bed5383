package ratelimit

import "time"

// TokenBucket tracks the request budget for a single scope and window.
// Tokens refill continuously at capacity/window, computed lazily at check
// time. The bucket carries no lock of its own: all access goes through the
// owning Limiter's mutex, which is what makes multi-bucket consumption
// atomic with respect to concurrent checkers.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// newTokenBucket creates a bucket for the given ceiling over the given
// window. maxBurst bounds the capacity so a cold-started process cannot
// emit more than maxBurst requests instantaneously, however generous the
// ceiling.
func newTokenBucket(ceiling int, window time.Duration, maxBurst int) *TokenBucket {
	capacity := float64(ceiling)
	if maxBurst > 0 && float64(maxBurst) < capacity {
		capacity = float64(maxBurst)
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: float64(ceiling) / window.Seconds(),
		lastRefill: time.Now(),
	}
}

// refill credits tokens for the time elapsed since the last refill.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// hasToken reports whether at least one whole token is available.
func (tb *TokenBucket) hasToken(now time.Time) bool {
	tb.refill(now)
	return tb.tokens >= 1
}

// consume deducts one token. Callers must have checked hasToken first.
func (tb *TokenBucket) consume() {
	tb.tokens--
	if tb.tokens < 0 {
		tb.tokens = 0
	}
}

// timeUntilToken returns how long until this bucket would hold one token.
func (tb *TokenBucket) timeUntilToken(now time.Time) time.Duration {
	tb.refill(now)
	if tb.tokens >= 1 {
		return 0
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

// clampTokens lowers the local count to the server-reported remaining
// quota. It never raises the count: the server's view may lag behind
// requests already in flight.
func (tb *TokenBucket) clampTokens(remaining float64) {
	if remaining < tb.tokens {
		tb.tokens = remaining
	}
}
