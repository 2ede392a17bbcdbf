package tiered

import (
	"github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

// rateAdjuster is satisfied by primitives whose refill rate can change
// at runtime. The default token bucket satisfies it.
type rateAdjuster interface {
	Rate() bucket.Limit
	SetRate(rate bucket.Limit)
}

// tokenReporter is satisfied by primitives that expose their remaining
// admission budget.
type tokenReporter interface {
	Tokens() float64
}

// Check admits or rejects one request from agent with the given cost.
// It returns nil when admitted and a *LimitError naming the rejecting
// scope otherwise.
//
// The global level is consulted first. A global rejection is attributed
// to the requesting agent's counters but does not consume from the
// agent's level. An agent-level rejection does not return the tokens
// already taken from the global level.
func (l *Limiter) Check(agent string, cost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.agentLocked(agent)
	if err != nil {
		return err
	}

	l.totalRequests++
	state.requests++

	if !l.enabled {
		return nil
	}

	if !l.global.Consume(cost) {
		l.totalRejected++
		state.rejected++
		retry := l.global.TimeUntilAvailable(cost)
		l.logger.Debug("request rejected", map[string]interface{}{
			"agent":       agent,
			"scope":       ScopeGlobal,
			"retry_after": retry.String(),
		})
		return &LimitError{Scope: ScopeGlobal, Agent: agent, RetryAfter: retry}
	}

	if !state.primitive.Consume(cost) {
		// The global tokens taken above stay consumed.
		l.totalRejected++
		state.rejected++
		retry := state.primitive.TimeUntilAvailable(cost)
		l.logger.Debug("request rejected", map[string]interface{}{
			"agent":       agent,
			"scope":       ScopeAgent,
			"retry_after": retry.String(),
		})
		return &LimitError{Scope: ScopeAgent, Agent: agent, RetryAfter: retry}
	}

	return nil
}

// agentLocked returns the agent's state, creating it on first sight.
// Must be called with the mutex held, so concurrent first requests from
// the same agent create exactly one level.
func (l *Limiter) agentLocked(agent string) (*agentState, error) {
	state, ok := l.agents[agent]
	if ok {
		return state, nil
	}

	primitive, err := l.factory(l.perAgentRate, l.perAgentBurst)
	if err != nil {
		return nil, errors.NewOperationError("tiered", "Check", err).
			WithContext("creating level for agent " + agent)
	}

	state = &agentState{primitive: primitive}
	l.agents[agent] = state
	l.logger.Debug("agent level created", map[string]interface{}{
		"agent":    agent,
		"rate":     l.perAgentRate,
		"capacity": l.perAgentBurst,
	})
	return state, nil
}

// Enable turns limiting on. Requests are admitted or rejected normally.
func (l *Limiter) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
	l.logger.Info("rate limiting enabled", nil)
}

// Disable turns limiting off. Requests are still counted but never
// rejected.
func (l *Limiter) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	l.logger.Info("rate limiting disabled", nil)
}

// Enabled reports whether limiting is on.
func (l *Limiter) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// GlobalRate returns the global refill rate, or 0 when the configured
// primitive cannot report one.
func (l *Limiter) GlobalRate() bucket.Limit {
	if adjuster, ok := l.global.(rateAdjuster); ok {
		return adjuster.Rate()
	}
	return 0
}

// SetGlobalRate changes the global refill rate. It is a no-op when the
// configured primitive is not rate-adjustable.
func (l *Limiter) SetGlobalRate(rate bucket.Limit) {
	if adjuster, ok := l.global.(rateAdjuster); ok {
		adjuster.SetRate(rate)
	}
}

// GlobalTokens returns the remaining global admission budget, or -1
// when the configured primitive does not report one.
func (l *Limiter) GlobalTokens() float64 {
	if reporter, ok := l.global.(tokenReporter); ok {
		return reporter.Tokens()
	}
	return -1
}
