/*
Package ratelimit provides the admission primitives behind the gateway's
rate limiting.

Three subpackages build on each other:

  - bucket: Token bucket limiter allowing burst traffic
  - window: Sliding window limiter enforcing a hard per-window ceiling
  - tiered: Global plus per-agent limiting composed from either primitive

Token bucket allows controlled bursts and refills continuously:

	limiter := bucket.New(10, 5) // 10 tokens/sec, burst of 5
	if limiter.Consume(1) {
		// Process request (allows immediate burst)
	}

Sliding window counts requests in a moving interval and never admits
more than the configured maximum per window:

	limiter := window.New(100, time.Minute) // 100 requests per rolling minute
	if limiter.Consume(1) {
		// Process request
	}

The tiered limiter is what the gateway wires in: every request passes a
shared global level and the requesting agent's own level, and a
rejection names the scope and how long to wait:

	limiter := tiered.New(600, 20, 300)
	if err := limiter.Check("control_agent", 1); err != nil {
		var lerr *tiered.LimitError
		if errors.As(err, &lerr) {
			// lerr.Scope, lerr.RetryAfter
		}
	}

An adaptive controller can lower the tiered limiter's global rate under
load and restore it afterwards; see tiered.NewAdaptive.

All limiters are safe for concurrent use. Deterministic tests inject a
Clock through each limiter's Config.
*/
package ratelimit
