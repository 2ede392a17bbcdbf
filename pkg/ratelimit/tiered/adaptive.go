package tiered

import (
	"sync"

	"github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/common/validation"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

// AdaptiveConfig holds tuning for closed-loop global rate control.
type AdaptiveConfig struct {
	// LoadThreshold is the load above which the global rate is lowered.
	// Loads below half the threshold restore it. Must be in (0, 1].
	LoadThreshold float64

	// DampingFactor multiplies the rate on each reduction. Must be in (0, 1).
	DampingFactor float64

	// RestoreFactor multiplies the rate on each restoration. Must be
	// greater than 1.
	RestoreFactor float64

	// MinRate is the floor the rate never drops below, in requests per
	// minute. Must be positive.
	MinRate float64
}

// DefaultAdaptiveConfig returns the standard control tuning.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		LoadThreshold: 0.8,
		DampingFactor: 0.9,
		RestoreFactor: 1.1,
		MinRate:       1.0,
	}
}

// Adaptive wraps a Limiter and adjusts its global rate from an external
// load figure. Per-agent levels are never adjusted.
type Adaptive struct {
	*Limiter

	adjustMu sync.Mutex

	loadThreshold float64
	damping       float64
	restore       float64
	minRate       bucket.Limit
	originalRate  bucket.Limit

	adjuster rateAdjuster
}

// NewAdaptive wraps limiter with the default control tuning. Panics if
// the limiter's global level is not rate-adjustable.
func NewAdaptive(limiter *Limiter) *Adaptive {
	adaptive, err := NewAdaptiveSafe(limiter)
	if err != nil {
		panic(err)
	}
	return adaptive
}

// NewAdaptiveSafe wraps limiter with the default control tuning,
// returning an error instead of panicking.
func NewAdaptiveSafe(limiter *Limiter) (*Adaptive, error) {
	return NewAdaptiveWithConfigSafe(limiter, DefaultAdaptiveConfig())
}

// NewAdaptiveWithConfig wraps limiter with custom control tuning.
// Panics if the configuration is invalid.
func NewAdaptiveWithConfig(limiter *Limiter, config AdaptiveConfig) *Adaptive {
	adaptive, err := NewAdaptiveWithConfigSafe(limiter, config)
	if err != nil {
		panic(err)
	}
	return adaptive
}

// NewAdaptiveWithConfigSafe wraps limiter with custom control tuning,
// returning an error for invalid configuration.
func NewAdaptiveWithConfigSafe(limiter *Limiter, config AdaptiveConfig) (*Adaptive, error) {
	if limiter == nil {
		return nil, errors.NewValidationError("adaptive", "limiter", nil, "cannot be nil").
			WithHint("construct the tiered limiter first")
	}

	adjuster, ok := limiter.global.(rateAdjuster)
	if !ok {
		return nil, errors.NewValidationError("adaptive", "factory", nil, "global level is not rate-adjustable").
			WithHint("use the default token bucket factory")
	}

	if err := validation.ValidateFraction("adaptive", "loadThreshold", config.LoadThreshold); err != nil {
		return nil, err
	}
	if config.DampingFactor <= 0 || config.DampingFactor >= 1 {
		return nil, errors.NewValidationError("adaptive", "dampingFactor", config.DampingFactor, "must be in (0, 1)").
			WithHint("a factor below 1 lowers the rate under load")
	}
	if config.RestoreFactor <= 1 {
		return nil, errors.NewValidationError("adaptive", "restoreFactor", config.RestoreFactor, "must be greater than 1").
			WithHint("a factor above 1 recovers the rate when load subsides")
	}
	if err := validation.ValidatePositiveFloat("adaptive", "minRate", config.MinRate); err != nil {
		return nil, err
	}

	return &Adaptive{
		Limiter:       limiter,
		loadThreshold: config.LoadThreshold,
		damping:       config.DampingFactor,
		restore:       config.RestoreFactor,
		minRate:       bucket.PerMinute(config.MinRate),
		originalRate:  adjuster.Rate(),
		adjuster:      adjuster,
	}, nil
}

// AdjustLimits moves the global rate in response to a load figure in
// [0, 1]. Load above the threshold lowers the rate, never below the
// configured minimum. Load below half the threshold restores it, never
// above the rate the limiter was constructed with. Loads in between
// leave the rate alone.
func (a *Adaptive) AdjustLimits(load float64) {
	a.adjustMu.Lock()
	defer a.adjustMu.Unlock()

	current := a.adjuster.Rate()

	switch {
	case load > a.loadThreshold:
		reduced := bucket.Limit(float64(current) * a.damping)
		if reduced < a.minRate {
			reduced = a.minRate
		}
		if reduced != current {
			a.adjuster.SetRate(reduced)
			a.logger.Info("global rate lowered", map[string]interface{}{
				"load":            load,
				"rate_per_minute": float64(reduced) * 60,
			})
		}

	case load < a.loadThreshold/2:
		restored := bucket.Limit(float64(current) * a.restore)
		if restored > a.originalRate {
			restored = a.originalRate
		}
		if restored != current {
			a.adjuster.SetRate(restored)
			a.logger.Info("global rate restored", map[string]interface{}{
				"load":            load,
				"rate_per_minute": float64(restored) * 60,
			})
		}
	}
}

// ConfiguredRate returns the rate the limiter was constructed with, the
// ceiling restoration converges to.
func (a *Adaptive) ConfiguredRate() bucket.Limit {
	return a.originalRate
}
