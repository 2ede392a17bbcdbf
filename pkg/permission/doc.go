/*
Package permission decides which agents may read or write which topics.

A Guard is built once from configured grants and never changes; checks are
plain map lookups, so every gateway operation can consult it without
contention. Denial by the guard is a distinct outcome from rate limiting:
a denied request never reaches the bus or the limiter's per-agent state.
*/
package permission
