package bucket

import (
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/gateflow/pkg/common/errors"
)

// Limit represents the maximum frequency of events per unit time.
// A zero Limit allows no events. Use Inf for unlimited rates.
type Limit float64

// Inf is the infinite rate limit; it allows all events.
var Inf = Limit(math.Inf(1))

// Every converts a minimum time interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// PerMinute converts a requests-per-minute figure to a Limit.
func PerMinute(n float64) Limit {
	return Limit(n / 60.0)
}

// Never is the advisory duration reported when tokens can never become
// available, such as a bucket whose refill rate is zero.
const Never = time.Duration(math.MaxInt64)

// Limiter controls how frequently events are allowed to happen using a
// token bucket algorithm. Checks are non-blocking: a rejected consume
// returns immediately and the caller decides whether to retry.
type Limiter interface {
	// Consume atomically refills the bucket and removes n tokens if at
	// least n are available. It reports whether the tokens were taken.
	Consume(n float64) bool

	// TimeUntilAvailable reports how long until n tokens will be
	// available. The answer is advisory: it holds only if no other
	// consumer takes tokens in the meantime.
	TimeUntilAvailable(n float64) time.Duration

	// SetRate changes the refill rate. It preserves the current capacity.
	SetRate(rate Limit)

	// Rate returns the current refill rate.
	Rate() Limit

	// Capacity returns the maximum number of tokens the bucket holds.
	Capacity() float64

	// Tokens returns the number of tokens currently available.
	Tokens() float64
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new Limiter.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Capacity is the maximum number of tokens that can be stored.
	Capacity float64

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of tokens to start with.
	// If negative, starts with full capacity.
	InitialTokens float64
}

// tokenBucket implements the Limiter interface using a token bucket algorithm.
type tokenBucket struct {
	mu         sync.Mutex
	rate       Limit
	capacity   float64
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// New creates a new rate limiter and panics on invalid input.
// Use NewSafe in production code paths.
func New(rate Limit, capacity float64) Limiter {
	limiter, err := NewSafe(rate, capacity)
	if err != nil {
		panic(err)
	}
	return limiter
}

// NewSafe creates a new rate limiter with validation that returns an error instead of panicking.
// The bucket starts full.
func NewSafe(rate Limit, capacity float64) (Limiter, error) {
	return NewWithConfigSafe(Config{
		Rate:          rate,
		Capacity:      capacity,
		Clock:         SystemClock{},
		InitialTokens: -1, // Start with full capacity
	})
}

// NewWithConfig creates a new rate limiter from a Config and panics on invalid input.
func NewWithConfig(config Config) Limiter {
	limiter, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return limiter
}

// NewWithConfigSafe creates a new rate limiter with validation that returns an error instead of panicking.
// This is the recommended way to create rate limiters for production use.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if config.Rate < 0 {
		return nil, errors.NewValidationError("bucket", "rate", config.Rate, "rate cannot be negative").
			WithHint("use 0 for no refill or a positive value")
	}
	if config.Capacity <= 0 {
		return nil, errors.NewValidationError("bucket", "capacity", config.Capacity, "capacity must be positive").
			WithHint("capacity determines how many tokens can be consumed instantly")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	initialTokens := config.InitialTokens
	if initialTokens < 0 || initialTokens > config.Capacity {
		initialTokens = config.Capacity
	}

	return &tokenBucket{
		rate:       config.Rate,
		capacity:   config.Capacity,
		tokens:     initialTokens,
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
	}, nil
}
