package tiered

// Snapshot is a point-in-time copy of the limiter's counters.
type Snapshot struct {
	// Enabled reports whether limiting was on when the snapshot was taken.
	Enabled bool

	// TotalRequests counts every Check call, admitted or not, including
	// calls made while limiting was disabled.
	TotalRequests int64

	// TotalRejected counts rejected Check calls at either scope.
	TotalRejected int64

	// Agents holds one entry per agent ever seen.
	Agents map[string]AgentSnapshot
}

// AgentSnapshot is a point-in-time copy of one agent's counters and
// remaining budget.
type AgentSnapshot struct {
	// Requests counts the agent's Check calls, admitted or not.
	Requests int64

	// Rejected counts the agent's rejections at either scope. A global
	// rejection of the agent's request counts here too.
	Rejected int64

	// Tokens is the agent level's remaining budget, or -1 when its
	// primitive does not report one.
	Tokens float64

	// Capacity is the agent level's burst capacity.
	Capacity float64
}

// Metrics returns a snapshot of all counters. The returned map is a
// copy; mutating it does not affect the limiter.
func (l *Limiter) Metrics() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	agents := make(map[string]AgentSnapshot, len(l.agents))
	for name, state := range l.agents {
		agents[name] = l.agentSnapshotLocked(state)
	}

	return Snapshot{
		Enabled:       l.enabled,
		TotalRequests: l.totalRequests,
		TotalRejected: l.totalRejected,
		Agents:        agents,
	}
}

// AgentStats returns one agent's counters and remaining budget. The
// second return value is false when the agent has never been seen.
func (l *Limiter) AgentStats(agent string) (AgentSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.agents[agent]
	if !ok {
		return AgentSnapshot{}, false
	}
	return l.agentSnapshotLocked(state), true
}

// ResetMetrics zeroes every counter. Agent levels and their remaining
// budgets are untouched, so admission behavior does not change.
func (l *Limiter) ResetMetrics() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalRequests = 0
	l.totalRejected = 0
	for _, state := range l.agents {
		state.requests = 0
		state.rejected = 0
	}
	l.logger.Info("rate limit counters reset", nil)
}

// agentSnapshotLocked copies one agent's state. Must be called with the
// mutex held.
func (l *Limiter) agentSnapshotLocked(state *agentState) AgentSnapshot {
	tokens := -1.0
	if reporter, ok := state.primitive.(tokenReporter); ok {
		tokens = reporter.Tokens()
	}
	return AgentSnapshot{
		Requests: state.requests,
		Rejected: state.rejected,
		Tokens:   tokens,
		Capacity: l.perAgentBurst,
	}
}
