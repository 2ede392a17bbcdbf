/*
Package window provides sliding window rate limiting for Go applications.

A sliding window counter remembers the timestamp of every admitted request
and allows a new one only while fewer than the configured maximum fall
inside the trailing window. Unlike token bucket, admission capacity does
not accrue while idle: an idle window simply empties.

Basic usage:

	limiter := window.New(100, time.Minute) // 100 requests per trailing minute
	if limiter.Consume(1) {
		// Process request
	}

Key Characteristics:

The sliding window algorithm provides strict trailing-interval limits by:
  - Evicting timestamps older than the window before every decision
  - Admitting a request and recording it in one atomic step
  - Guaranteeing at most MaxRequests admissions in any trailing window

Comparison with Token Bucket:

	// Token Bucket: continuous refill, bursts up to capacity
	tokenLimiter := bucket.New(5, 10)

	// Sliding Window: hard ceiling per trailing interval
	windowLimiter := window.New(10, 2*time.Second)

Both satisfy the same consume/report contract, so a composite limiter can
swap one for the other without its callers noticing. A sliding window has
no adjustable refill rate, which is the one capability it cannot offer.

Use Cases:

Sliding window is ideal for:
  - API quotas expressed as "N requests per minute"
  - Abuse ceilings where bursts right after idle must stay bounded
  - Audit-friendly limiting (the window contents are inspectable)

Token bucket is better for:
  - Smoothed throughput with controlled burst tolerance
  - Adaptive limiting, since its refill rate can be changed at runtime
*/
package window
