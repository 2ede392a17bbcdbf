package bucket

import (
	"math"
	"time"
)

// Consume atomically refills the bucket and takes n tokens if available.
func (tb *tokenBucket) Consume(n float64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if n <= 0 {
		return true
	}

	if tb.rate == Inf {
		return true
	}

	tb.updateTokens(tb.clock.Now())

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// TimeUntilAvailable reports how long until n tokens will be available.
func (tb *tokenBucket) TimeUntilAvailable(n float64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if n <= 0 || tb.rate == Inf {
		return 0
	}

	tb.updateTokens(tb.clock.Now())

	deficit := n - tb.tokens
	if deficit <= 0 {
		return 0
	}
	if tb.rate == 0 {
		return Never
	}
	return time.Duration(float64(time.Second) * deficit / float64(tb.rate))
}

// SetRate changes the refill rate. Tokens accrued under the old rate are
// settled first so the change only affects refill going forward.
func (tb *tokenBucket) SetRate(rate Limit) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	tb.rate = rate
}

// Rate returns the current refill rate.
func (tb *tokenBucket) Rate() Limit {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

// Capacity returns the maximum number of tokens the bucket holds.
func (tb *tokenBucket) Capacity() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.capacity
}

// Tokens returns the number of tokens currently available.
func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	return tb.tokens
}

// updateTokens adds tokens based on the time elapsed since the last update.
// Callers must hold tb.mu.
func (tb *tokenBucket) updateTokens(now time.Time) {
	if tb.rate == Inf {
		tb.tokens = tb.capacity
		tb.lastUpdate = now
		return
	}

	if tb.rate == 0 {
		// Zero rate means no refill
		tb.lastUpdate = now
		return
	}

	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}

	tokensToAdd := elapsed.Seconds() * float64(tb.rate)
	tb.tokens = math.Min(tb.tokens+tokensToAdd, tb.capacity)
	tb.lastUpdate = now
}
