package tiered

import (
	"fmt"
	"sync"
	"time"

	"github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/common/validation"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

// Scope identifies which limiting level rejected a request.
const (
	ScopeGlobal = "global"
	ScopeAgent  = "agent"
)

// Primitive is the admission contract a limiting level must satisfy.
// Both bucket.Limiter and window.Limiter satisfy it.
type Primitive interface {
	Consume(n float64) bool
	TimeUntilAvailable(n float64) time.Duration
}

// Factory builds the admission primitive for one limiting level.
// rate is in requests per minute; capacity is the instantaneous burst
// the level may absorb.
type Factory func(rate float64, capacity float64) (Primitive, error)

// LimitError reports a rejected request with enough context to retry.
type LimitError struct {
	// Scope is ScopeGlobal or ScopeAgent.
	Scope string

	// Agent is the agent whose request was rejected.
	Agent string

	// RetryAfter is how long until the rejecting level could admit the
	// request, assuming no competing traffic.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s) for agent %q: retry after %v", e.Scope, e.Agent, e.RetryAfter)
}

// Unwrap returns ErrRateLimited so callers can use errors.Is.
func (e *LimitError) Unwrap() error {
	return errors.ErrRateLimited
}

// Config holds configuration for creating a tiered limiter.
type Config struct {
	// RequestsPerMinute is the global refill rate shared by all agents.
	RequestsPerMinute float64

	// BurstSize is the global burst capacity. Per-agent levels get half
	// of it as their capacity.
	BurstSize float64

	// PerAgentLimit is the refill rate of each agent's own level, in
	// requests per minute.
	PerAgentLimit float64

	// Clock provides time functionality (defaults to system clock)
	Clock bucket.Clock

	// Factory builds admission primitives for both levels. Defaults to
	// a token bucket factory.
	Factory Factory

	// Logger receives enable/disable and rejection diagnostics.
	// Defaults to a logger with the "ratelimit" component.
	Logger *logging.Logger
}

// agentState is one agent's level plus its monotonic counters.
type agentState struct {
	primitive Primitive
	requests  int64
	rejected  int64
}

// Limiter applies a shared global limit and a per-agent limit to every
// request. The zero value is not usable; use New or NewWithConfig.
type Limiter struct {
	mu      sync.Mutex
	enabled bool

	global Primitive
	agents map[string]*agentState

	factory       Factory
	perAgentRate  float64
	perAgentBurst float64

	totalRequests int64
	totalRejected int64

	logger *logging.Logger
}

// New creates a tiered limiter with the given global rate (requests per
// minute), global burst capacity, and per-agent rate (requests per
// minute). Panics if the configuration is invalid.
func New(requestsPerMinute, burstSize, perAgentLimit float64) *Limiter {
	limiter, err := NewSafe(requestsPerMinute, burstSize, perAgentLimit)
	if err != nil {
		panic(err)
	}
	return limiter
}

// NewSafe creates a tiered limiter, returning an error for invalid
// configuration instead of panicking.
func NewSafe(requestsPerMinute, burstSize, perAgentLimit float64) (*Limiter, error) {
	return NewWithConfigSafe(Config{
		RequestsPerMinute: requestsPerMinute,
		BurstSize:         burstSize,
		PerAgentLimit:     perAgentLimit,
	})
}

// NewWithConfig creates a tiered limiter with custom configuration.
// Panics if the configuration is invalid.
func NewWithConfig(config Config) *Limiter {
	limiter, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return limiter
}

// NewWithConfigSafe creates a tiered limiter with custom configuration,
// returning an error for invalid configuration.
func NewWithConfigSafe(config Config) (*Limiter, error) {
	if err := validation.ValidatePositiveFloat("tiered", "requestsPerMinute", config.RequestsPerMinute); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveFloat("tiered", "burstSize", config.BurstSize); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveFloat("tiered", "perAgentLimit", config.PerAgentLimit); err != nil {
		return nil, err
	}

	clock := config.Clock
	if clock == nil {
		clock = bucket.SystemClock{}
	}

	factory := config.Factory
	if factory == nil {
		factory = tokenBucketFactory(clock)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.New().WithComponent("ratelimit")
	}

	global, err := factory(config.RequestsPerMinute, config.BurstSize)
	if err != nil {
		return nil, errors.NewOperationError("tiered", "New", err)
	}

	return &Limiter{
		enabled:       true,
		global:        global,
		agents:        make(map[string]*agentState),
		factory:       factory,
		perAgentRate:  config.PerAgentLimit,
		perAgentBurst: config.BurstSize / 2,
		logger:        logger,
	}, nil
}

// tokenBucketFactory builds token bucket levels on a shared clock.
// Levels start full so a fresh limiter absorbs its configured burst.
func tokenBucketFactory(clock bucket.Clock) Factory {
	return func(rate float64, capacity float64) (Primitive, error) {
		return bucket.NewWithConfigSafe(bucket.Config{
			Rate:          bucket.PerMinute(rate),
			Capacity:      capacity,
			Clock:         clock,
			InitialTokens: -1,
		})
	}
}
