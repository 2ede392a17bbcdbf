package bucket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vnykmshr/gateflow/pkg/metrics"
)

// MetricsLimiter wraps a Limiter with Prometheus metrics collection.
type MetricsLimiter struct {
	limiter  Limiter
	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewWithMetrics creates a new token bucket limiter with metrics enabled.
func NewWithMetrics(rate Limit, capacity float64, name string) Limiter {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	registry := prometheus.NewRegistry()
	config := metrics.Config{
		Enabled:  true,
		Registry: registry,
	}

	return NewWithConfigAndMetrics(Config{
		Rate:          rate,
		Capacity:      capacity,
		Clock:         SystemClock{},
		InitialTokens: -1,
	}, name, config)
}

// NewWithConfigAndMetrics creates a new token bucket limiter with custom config and metrics.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) Limiter {
	baseLimiter := NewWithConfig(config)

	if !metricsConfig.Enabled {
		return baseLimiter
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		// Create custom registry if provided
		registry = metrics.NewRegistry(metricsConfig.Registry)
	}

	return &MetricsLimiter{
		limiter:  baseLimiter,
		name:     name,
		registry: registry,
		enabled:  true,
	}
}

// Consume atomically refills the bucket and takes n tokens if available.
func (ml *MetricsLimiter) Consume(n float64) bool {
	if ml.enabled {
		ml.registry.RateLimitRequests.WithLabelValues("token_bucket", ml.name).Add(n)
	}

	allowed := ml.limiter.Consume(n)

	if ml.enabled {
		if allowed {
			ml.registry.RateLimitAllowed.WithLabelValues("token_bucket", ml.name).Add(n)
		} else {
			ml.registry.RateLimitDenied.WithLabelValues("token_bucket", ml.name).Add(n)
		}

		// Update current token count
		ml.registry.RateLimitTokens.WithLabelValues("token_bucket", ml.name).Set(ml.limiter.Tokens())
	}

	return allowed
}

// TimeUntilAvailable reports how long until n tokens will be available.
func (ml *MetricsLimiter) TimeUntilAvailable(n float64) time.Duration {
	return ml.limiter.TimeUntilAvailable(n)
}

// SetRate changes the refill rate.
func (ml *MetricsLimiter) SetRate(rate Limit) {
	ml.limiter.SetRate(rate)
}

// Rate returns the current refill rate.
func (ml *MetricsLimiter) Rate() Limit {
	return ml.limiter.Rate()
}

// Capacity returns the maximum number of tokens the bucket holds.
func (ml *MetricsLimiter) Capacity() float64 {
	return ml.limiter.Capacity()
}

// Tokens returns the number of tokens currently available.
func (ml *MetricsLimiter) Tokens() float64 {
	tokens := ml.limiter.Tokens()

	if ml.enabled {
		ml.registry.RateLimitTokens.WithLabelValues("token_bucket", ml.name).Set(tokens)
	}

	return tokens
}

// EnableMetrics enables metrics collection.
func (ml *MetricsLimiter) EnableMetrics(config metrics.Config) error {
	ml.enabled = config.Enabled

	if config.Registry != nil {
		ml.registry = metrics.NewRegistry(config.Registry)
	}

	return nil
}

// DisableMetrics disables metrics collection.
func (ml *MetricsLimiter) DisableMetrics() {
	ml.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (ml *MetricsLimiter) MetricsEnabled() bool {
	return ml.enabled
}
