/*
Package tiered provides two-level rate limiting: one global limit shared by
all callers and an independent, lazily created limit per agent.

A Check passes only when both levels admit the request. The global level is
consulted first, so a saturated gateway rejects uniformly before any
per-agent accounting runs. Per-agent limiters are created on first sight
with half the global burst as their capacity, keeping any single agent from
monopolizing the shared budget.

Basic usage:

	limiter := tiered.New(1000, 100, 500) // 1000 req/min global, burst 100, 500 req/min per agent

	if err := limiter.Check("monitoring_agent", 1); err != nil {
		var lerr *tiered.LimitError
		if errors.As(err, &lerr) {
			// lerr.Scope tells which level rejected; lerr.RetryAfter when to retry
		}
	}

Known accounting quirk: when the global level admits a request that the
agent level then rejects, the tokens taken from the global bucket are not
returned. Heavy per-agent rejection therefore drains global capacity that
other agents never get to use. Callers that need exact global accounting
should keep per-agent limits high enough that agent-level rejections are
rare.

The Adaptive wrapper adds closed-loop control: feed it a load figure in
[0, 1] and it lowers the global rate under pressure and restores it toward
the configured rate when load subsides. Per-agent limits are never adjusted.

Alternative admission primitives (such as a sliding window) can replace the
default token bucket through Config.Factory. Adaptive control requires a
rate-adjustable primitive, which the default token bucket is and a sliding
window is not.
*/
package tiered
