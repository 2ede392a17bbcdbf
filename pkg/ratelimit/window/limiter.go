package window

import (
	"sync"
	"time"

	"github.com/vnykmshr/gateflow/pkg/common/validation"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

// Limiter defines the interface for sliding window rate limiting.
type Limiter interface {
	// Consume reports whether n requests may be admitted now and, if so,
	// records them in the window. It never admits partially: either all
	// n requests are recorded or none are.
	Consume(n float64) bool

	// TimeUntilAvailable returns how long until n requests could be
	// admitted, assuming no other requests arrive in the meantime.
	// Returns 0 if they could be admitted immediately and bucket.Never
	// if n exceeds the window maximum.
	TimeUntilAvailable(n float64) time.Duration

	// Count returns the number of requests currently inside the window.
	Count() int

	// MaxRequests returns the configured window maximum.
	MaxRequests() int

	// Window returns the configured window duration.
	Window() time.Duration
}

// Config holds configuration for creating a sliding window limiter.
type Config struct {
	// MaxRequests is the maximum number of requests admitted in any
	// trailing window.
	MaxRequests int

	// Window is the trailing interval over which requests are counted.
	Window time.Duration

	// Clock provides time functionality (defaults to system clock)
	Clock bucket.Clock
}

// slidingWindow implements the Limiter interface.
type slidingWindow struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	timestamps  []time.Time
	clock       bucket.Clock
}

// New creates a new sliding window limiter admitting at most maxRequests
// in any trailing window. Panics if the configuration is invalid.
func New(maxRequests int, windowSize time.Duration) Limiter {
	limiter, err := NewSafe(maxRequests, windowSize)
	if err != nil {
		panic(err)
	}
	return limiter
}

// NewSafe creates a new sliding window limiter, returning an error for
// invalid configuration instead of panicking.
func NewSafe(maxRequests int, windowSize time.Duration) (Limiter, error) {
	return NewWithConfigSafe(Config{
		MaxRequests: maxRequests,
		Window:      windowSize,
	})
}

// NewWithConfig creates a new sliding window limiter with custom
// configuration. Panics if the configuration is invalid.
func NewWithConfig(config Config) Limiter {
	limiter, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return limiter
}

// NewWithConfigSafe creates a new sliding window limiter with custom
// configuration, returning an error for invalid configuration.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if err := validation.ValidatePositive("window", "maxRequests", config.MaxRequests); err != nil {
		return nil, err
	}

	if err := validation.ValidatePositiveDuration("window", "window", config.Window); err != nil {
		return nil, err
	}

	clock := config.Clock
	if clock == nil {
		clock = bucket.SystemClock{}
	}

	return &slidingWindow{
		maxRequests: config.MaxRequests,
		window:      config.Window,
		timestamps:  make([]time.Time, 0, config.MaxRequests),
		clock:       clock,
	}, nil
}
