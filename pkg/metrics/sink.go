package metrics

import (
	"time"
)

// Sink receives operational events from gateway components. Implementations
// must be safe for concurrent use and must not block the caller.
type Sink interface {
	// RecordRequest counts one gateway request with its outcome status.
	RecordRequest(operation, agent, status string)

	// ObserveRequestDuration records how long a request took to handle.
	ObserveRequestDuration(operation string, d time.Duration)

	// RecordSamples counts samples moved through the bus, direction "read" or "write".
	RecordSamples(topic, direction string, n int)

	// RecordRateLimitExceeded counts one rate limit rejection for an agent.
	RecordRateLimitExceeded(agent, scope string)

	// RecordPermissionDenied counts one access denial.
	RecordPermissionDenied(agent, topic, operation string)

	// RecordError counts one operational error by type.
	RecordError(operation, errorType string)

	// SubscriptionOpened records a new subscription on a topic.
	SubscriptionOpened(topic, agent string)

	// SubscriptionClosed records a subscription teardown on a topic.
	SubscriptionClosed(topic string)

	// SetActiveAgents reports the number of agents with open sessions.
	SetActiveAgents(n int)
}

// NopSink discards all events. It is the default when no sink is configured.
type NopSink struct{}

func (NopSink) RecordRequest(operation, agent, status string)            {}
func (NopSink) ObserveRequestDuration(operation string, d time.Duration) {}
func (NopSink) RecordSamples(topic, direction string, n int)             {}
func (NopSink) RecordRateLimitExceeded(agent, scope string)              {}
func (NopSink) RecordPermissionDenied(agent, topic, operation string)    {}
func (NopSink) RecordError(operation, errorType string)                  {}
func (NopSink) SubscriptionOpened(topic, agent string)                   {}
func (NopSink) SubscriptionClosed(topic string)                          {}
func (NopSink) SetActiveAgents(n int)                                    {}

var _ Sink = NopSink{}
var _ Sink = (*Registry)(nil)

// RecordRequest implements Sink.
func (r *Registry) RecordRequest(operation, agent, status string) {
	r.RequestsTotal.WithLabelValues(operation, agent, status).Inc()
}

// ObserveRequestDuration implements Sink.
func (r *Registry) ObserveRequestDuration(operation string, d time.Duration) {
	r.RequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordSamples implements Sink.
func (r *Registry) RecordSamples(topic, direction string, n int) {
	if n <= 0 {
		return
	}
	r.SamplesTotal.WithLabelValues(topic, direction).Add(float64(n))
}

// RecordRateLimitExceeded implements Sink.
func (r *Registry) RecordRateLimitExceeded(agent, scope string) {
	r.RateLimitExceeded.WithLabelValues(agent, scope).Inc()
}

// RecordPermissionDenied implements Sink.
func (r *Registry) RecordPermissionDenied(agent, topic, operation string) {
	r.PermissionDenied.WithLabelValues(agent, topic, operation).Inc()
}

// RecordError implements Sink.
func (r *Registry) RecordError(operation, errorType string) {
	r.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SubscriptionOpened implements Sink.
func (r *Registry) SubscriptionOpened(topic, agent string) {
	r.SubscriptionsOpened.WithLabelValues(topic, agent).Inc()
	r.SubscriptionsActive.WithLabelValues(topic).Inc()
}

// SubscriptionClosed implements Sink.
func (r *Registry) SubscriptionClosed(topic string) {
	r.SubscriptionsActive.WithLabelValues(topic).Dec()
}

// SetActiveAgents implements Sink.
func (r *Registry) SetActiveAgents(n int) {
	r.ActiveAgents.Set(float64(n))
}
