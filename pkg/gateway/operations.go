package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vnykmshr/gateflow/pkg/config"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/tiered"
	"github.com/vnykmshr/gateflow/pkg/subscription"
)

// Request status labels recorded on the metrics sink.
const (
	statusSuccess     = "success"
	statusDenied      = "denied"
	statusRateLimited = "rate_limited"
	statusError       = "error"
)

// Result is the common view over operation results. Every result is a
// flat structure with a Success discriminator; on failure Error carries
// a human-readable message.
type Result interface {
	OK() bool
}

// SubscribeResult reports the outcome of a subscribe call.
type SubscribeResult struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	TopicName      string `json:"topic_name,omitempty"`
	Error          string `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r SubscribeResult) OK() bool { return r.Success }

// ReadResult carries the samples drained by a read call. Samples hold
// the payloads exactly as written.
type ReadResult struct {
	Success bool              `json:"success"`
	Samples []json.RawMessage `json:"samples,omitempty"`
	Count   int               `json:"count"`
	Error   string            `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r ReadResult) OK() bool { return r.Success }

// WriteResult reports the outcome of a write call.
type WriteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r WriteResult) OK() bool { return r.Success }

// UnsubscribeResult reports the outcome of an unsubscribe call. Unknown
// subscription IDs still succeed; Message notes the no-op.
type UnsubscribeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r UnsubscribeResult) OK() bool { return r.Success }

// AgentTopics lists the topics an agent may read and write.
type AgentTopics struct {
	Readable []string `json:"readable"`
	Writable []string `json:"writable"`
}

// ListTopicsResult carries an agent's topic grants.
type ListTopicsResult struct {
	Success bool        `json:"success"`
	Topics  AgentTopics `json:"topics"`
}

// OK reports whether the operation succeeded.
func (r ListTopicsResult) OK() bool { return r.Success }

// TopicInfoResult carries a topic's type definition from the
// configured type table.
type TopicInfoResult struct {
	Success        bool                   `json:"success"`
	TypeDefinition *config.TypeDefinition `json:"type_definition,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r TopicInfoResult) OK() bool { return r.Success }

// admit runs the permission and rate-limit gates shared by the
// data-plane operations, recording the outcome. A non-empty message
// means the operation must be refused.
func (g *Gateway) admit(op, agent, topic string, write bool) (string, bool) {
	allowed := g.guard.CanRead(agent, topic)
	verb := "read"
	if write {
		allowed = g.guard.CanWrite(agent, topic)
		verb = "write"
	}
	if !allowed {
		g.sink.RecordRequest(op, agent, statusDenied)
		g.sink.RecordPermissionDenied(agent, topic, op)
		return fmt.Sprintf("Agent '%s' does not have %s permission for topic '%s'", agent, verb, topic), false
	}

	if g.limiter == nil {
		return "", true
	}
	if err := g.limiter.Check(agent, 1); err != nil {
		var lerr *tiered.LimitError
		if errors.As(err, &lerr) {
			g.sink.RecordRequest(op, agent, statusRateLimited)
			g.sink.RecordRateLimitExceeded(agent, lerr.Scope)
			return fmt.Sprintf("Rate limit exceeded (%s), retry after %.1fs", lerr.Scope, lerr.RetryAfter.Seconds()), false
		}
		g.sink.RecordRequest(op, agent, statusError)
		g.sink.RecordError(op, "limiter_error")
		return err.Error(), false
	}
	return "", true
}

// observe records the operation's duration against the sink.
func (g *Gateway) observe(op string) func() {
	start := g.clock.Now()
	return func() {
		g.sink.ObserveRequestDuration(op, g.clock.Now().Sub(start))
	}
}

// Subscribe registers a pull subscription: the topic's bus reader is
// materialized so later reads observe samples written from now on.
func (g *Gateway) Subscribe(agent, topic string) SubscribeResult {
	return g.subscribe(agent, topic, subscription.SubscribeOptions{})
}

// SubscribeWithCallback registers an in-process consumer invoked with
// each polled batch of samples. Async callbacks run on the gateway's
// dispatch pool instead of the subscription's poller goroutine.
func (g *Gateway) SubscribeWithCallback(agent, topic string, callback subscription.Callback, async bool) SubscribeResult {
	return g.subscribe(agent, topic, subscription.SubscribeOptions{Callback: callback, Async: async})
}

func (g *Gateway) subscribe(agent, topic string, opts subscription.SubscribeOptions) SubscribeResult {
	const op = "subscribe"
	defer g.observe(op)()

	if msg, ok := g.admit(op, agent, topic, false); !ok {
		return SubscribeResult{Error: msg}
	}

	id, err := g.registry.Subscribe(agent, topic, opts)
	if err != nil {
		g.sink.RecordRequest(op, agent, statusError)
		g.sink.RecordError(op, "subscribe_error")
		return SubscribeResult{Error: err.Error()}
	}

	g.sink.RecordRequest(op, agent, statusSuccess)
	return SubscribeResult{Success: true, SubscriptionID: id, TopicName: topic}
}

// Read drains up to maxSamples buffered samples from the topic. A
// non-positive maxSamples defaults to DefaultReadLimit; values above
// the configured ceiling are clamped.
func (g *Gateway) Read(ctx context.Context, agent, topic string, maxSamples int) ReadResult {
	const op = "read"
	defer g.observe(op)()

	if msg, ok := g.admit(op, agent, topic, false); !ok {
		return ReadResult{Error: msg}
	}

	if maxSamples <= 0 {
		maxSamples = DefaultReadLimit
	}
	if maxSamples > g.maxSamples {
		maxSamples = g.maxSamples
	}

	samples, err := g.bus.Read(ctx, topic, maxSamples)
	if err != nil {
		g.sink.RecordRequest(op, agent, statusError)
		g.sink.RecordError(op, "bus_error")
		return ReadResult{Error: err.Error()}
	}

	payloads := make([]json.RawMessage, 0, len(samples))
	for _, s := range samples {
		payloads = append(payloads, json.RawMessage(s.Data))
	}

	g.sink.RecordRequest(op, agent, statusSuccess)
	if len(samples) > 0 {
		g.sink.RecordSamples(topic, "read", len(samples))
	}
	return ReadResult{Success: true, Samples: payloads, Count: len(payloads)}
}

// Write JSON-encodes data and publishes it to the topic.
func (g *Gateway) Write(ctx context.Context, agent, topic string, data interface{}) WriteResult {
	const op = "write"
	defer g.observe(op)()

	if msg, ok := g.admit(op, agent, topic, true); !ok {
		return WriteResult{Error: msg}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		g.sink.RecordRequest(op, agent, statusError)
		g.sink.RecordError(op, "marshal_error")
		return WriteResult{Error: fmt.Sprintf("Failed to encode data for topic '%s': %v", topic, err)}
	}

	if err := g.bus.Write(ctx, topic, payload); err != nil {
		g.sink.RecordRequest(op, agent, statusError)
		g.sink.RecordError(op, "bus_error")
		return WriteResult{Error: err.Error()}
	}

	g.sink.RecordRequest(op, agent, statusSuccess)
	g.sink.RecordSamples(topic, "write", 1)
	return WriteResult{Success: true, Message: fmt.Sprintf("Data written to topic '%s'", topic)}
}

// Unsubscribe tears down one subscription. Unknown IDs succeed as a
// no-op so retries and crossed teardowns stay harmless.
func (g *Gateway) Unsubscribe(subscriptionID string) UnsubscribeResult {
	const op = "unsubscribe"
	defer g.observe(op)()

	g.sink.RecordRequest(op, "", statusSuccess)
	if g.registry.Unsubscribe(subscriptionID) {
		return UnsubscribeResult{Success: true, Message: fmt.Sprintf("Subscription '%s' removed", subscriptionID)}
	}
	return UnsubscribeResult{Success: true, Message: fmt.Sprintf("Subscription '%s' not found (no-op)", subscriptionID)}
}

// ListTopics reports the topics the agent may read and write. The call
// is not charged against the rate limit: introspection stays available
// to a throttled agent.
func (g *Gateway) ListTopics(agent string) ListTopicsResult {
	readable, writable := g.guard.Topics(agent)
	g.sink.RecordRequest("list_topics", agent, statusSuccess)
	return ListTopicsResult{Success: true, Topics: AgentTopics{Readable: readable, Writable: writable}}
}

// TopicInfo returns the topic's type definition from the configured
// type table.
func (g *Gateway) TopicInfo(topic string) TopicInfoResult {
	const op = "get_topic_info"

	def, ok := g.types[topic]
	if !ok {
		g.sink.RecordRequest(op, "", statusError)
		return TopicInfoResult{Error: fmt.Sprintf("Topic '%s' is not defined", topic)}
	}

	fields := make(map[string]string, len(def.Fields))
	for name, typ := range def.Fields {
		fields[name] = typ
	}
	g.sink.RecordRequest(op, "", statusSuccess)
	return TopicInfoResult{Success: true, TypeDefinition: &config.TypeDefinition{Type: def.Type, Fields: fields}}
}

// CloseSession cascades an unsubscribe over every subscription the
// agent owns and returns how many were torn down. Safe for agents with
// no subscriptions.
func (g *Gateway) CloseSession(agent string) int {
	count := g.registry.CloseSession(agent)
	g.logger.Info("session closed", map[string]interface{}{
		"agent":         agent,
		"subscriptions": count,
	})
	return count
}
