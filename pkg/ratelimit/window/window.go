package window

import (
	"math"
	"time"

	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

// Consume reports whether n requests fit in the current window and, if
// so, records them. Eviction of expired timestamps and admission happen
// under one lock, so concurrent callers can never exceed the maximum.
func (sw *slidingWindow) Consume(n float64) bool {
	if n <= 0 {
		return true
	}
	need := requestSlots(n)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.evict(now)

	if len(sw.timestamps)+need > sw.maxRequests {
		return false
	}
	for i := 0; i < need; i++ {
		sw.timestamps = append(sw.timestamps, now)
	}
	return true
}

// TimeUntilAvailable returns the wait until n requests could be admitted,
// assuming nothing else consumes in the meantime. The wait ends when
// enough of the oldest recorded timestamps age out of the window.
func (sw *slidingWindow) TimeUntilAvailable(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	need := requestSlots(n)
	if need > sw.maxRequests {
		return bucket.Never
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.evict(now)

	free := sw.maxRequests - len(sw.timestamps)
	if need <= free {
		return 0
	}

	// The (need-free)-th oldest entry must expire before enough slots
	// open up. An entry recorded at t leaves the window at t+window.
	blocking := sw.timestamps[need-free-1]
	return blocking.Add(sw.window).Sub(now)
}

// Count returns the number of requests currently inside the window.
func (sw *slidingWindow) Count() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evict(sw.clock.Now())
	return len(sw.timestamps)
}

// MaxRequests returns the configured window maximum.
func (sw *slidingWindow) MaxRequests() int {
	return sw.maxRequests
}

// Window returns the configured window duration.
func (sw *slidingWindow) Window() time.Duration {
	return sw.window
}

// evict drops timestamps that have aged out of the trailing window.
// Must be called with the mutex held. An entry recorded at t stops
// counting once now >= t+window, so a slot frees at exactly that instant.
func (sw *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.timestamps) && !sw.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.timestamps = append(sw.timestamps[:0], sw.timestamps[i:]...)
	}
}

// requestSlots converts a fractional request cost to whole window slots.
func requestSlots(n float64) int {
	return int(math.Ceil(n))
}
