package bucket

import (
	"testing"
	"time"
)

// mustNewSafe creates a new limiter or panics on error (for benchmarks only)
func mustNewSafe(rate Limit, capacity float64) Limiter {
	limiter, err := NewSafe(rate, capacity)
	if err != nil {
		panic(err)
	}
	return limiter
}

// BenchmarkConsume measures the performance of Consume calls
func BenchmarkConsume(b *testing.B) {
	limiter := mustNewSafe(1000000, 1000) // High rate to avoid starvation

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Consume(1)
		}
	})
}

// BenchmarkConsumeN measures multi-token consumption
func BenchmarkConsumeN(b *testing.B) {
	limiter := mustNewSafe(1000000, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Consume(2)
		}
	})
}

// BenchmarkTimeUntilAvailable measures the advisory wait calculation
func BenchmarkTimeUntilAvailable(b *testing.B) {
	limiter := mustNewSafe(100, 10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.TimeUntilAvailable(5)
	}
}

// BenchmarkTokens measures the performance of Tokens calls
func BenchmarkTokens(b *testing.B) {
	limiter := mustNewSafe(1000000, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Tokens()
		}
	})
}

// BenchmarkSetRate measures the performance of SetRate calls
func BenchmarkSetRate(b *testing.B) {
	limiter := mustNewSafe(100, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.SetRate(Limit(100 + i%100))
	}
}

// BenchmarkHighContention simulates high contention scenarios
func BenchmarkHighContention(b *testing.B) {
	// Lower rate/capacity to create more contention
	limiter := mustNewSafe(100, 10)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Consume(1)
		}
	})
}

// BenchmarkZeroRate benchmarks a limiter with zero refill rate
func BenchmarkZeroRate(b *testing.B) {
	limiter := mustNewSafe(0, 1000) // No refill, just initial tokens

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Consume(1)
	}
}

// BenchmarkInfiniteRate benchmarks a limiter with infinite rate
func BenchmarkInfiniteRate(b *testing.B) {
	limiter := mustNewSafe(Inf, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Consume(1)
		}
	})
}

// BenchmarkTimeUpdate measures the cost of time-based token updates
func BenchmarkTimeUpdate(b *testing.B) {
	clock := &MockClock{now: time.Now()}
	limiter := NewWithConfig(Config{
		Rate:          100,
		Capacity:      100,
		Clock:         clock,
		InitialTokens: 0,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Advance time to trigger token updates
		clock.Advance(10 * time.Millisecond)
		limiter.Consume(1)
	}
}

// BenchmarkMemoryAllocation measures memory allocation patterns
func BenchmarkMemoryAllocation(b *testing.B) {
	b.ReportAllocs()

	limiter := mustNewSafe(1000, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if limiter.Consume(1) {
			// Token consumed
		}
	}
}
