package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/gateflow/pkg/bus"
	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/metrics"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/tiered"
	"github.com/vnykmshr/gateflow/pkg/scheduling/workerpool"
)

// Callback receives a batch of samples drained from a topic.
type Callback func(topic string, samples []bus.Sample)

// SubscribeOptions controls how one subscription consumes its topic.
type SubscribeOptions struct {
	// Callback receives sample batches as the poller drains the topic.
	// Nil means the caller reads manually and no poller is started.
	Callback Callback

	// Async schedules callback invocations on the dispatcher pool so a
	// slow consumer does not stall its poller. Requires a Dispatcher on
	// the registry.
	Async bool
}

// Config holds configuration options for creating a Registry.
type Config struct {
	// Bus is the transport polled for samples. Required.
	Bus bus.Bus

	// Limiter admits poller reads when set. Poll iterations count
	// against the owning agent like any other request.
	Limiter *tiered.Limiter

	// Sink receives subscription gauges and poll outcomes.
	// If nil, metrics.NopSink is used.
	Sink metrics.Sink

	// Logger receives lifecycle and poll diagnostics. If nil, a default
	// logger is used.
	Logger *logging.Logger

	// Clock stamps subscription IDs. If nil, SystemClock is used.
	Clock bucket.Clock

	// PollInterval is the pause between poll iterations.
	// If zero, 100ms is used.
	PollInterval time.Duration

	// MaxSamplesPerRead bounds each poll's bus read.
	// If zero, 100 is used.
	MaxSamplesPerRead int

	// Dispatcher executes async callbacks. Required only when a
	// subscription asks for Async delivery.
	Dispatcher workerpool.Pool
}

// subscription is one agent's attachment to one topic. The active flag is
// the single source of truth for its poller: the goroutine re-checks it
// every iteration and exits once it drops.
type subscription struct {
	id       string
	topic    string
	agent    string
	callback Callback
	async    bool
	active   int32
}

func (s *subscription) isActive() bool {
	return atomic.LoadInt32(&s.active) == 1
}

func (s *subscription) deactivate() {
	atomic.StoreInt32(&s.active, 0)
}

// Registry tracks subscriptions per agent session and runs one poller
// goroutine for each subscription with a callback. Subscription IDs are
// never reused within a process.
type Registry struct {
	bus          bus.Bus
	limiter      *tiered.Limiter
	sink         metrics.Sink
	logger       *logging.Logger
	clock        bucket.Clock
	pollInterval time.Duration
	maxSamples   int
	dispatcher   workerpool.Pool

	mu      sync.Mutex
	subs    map[string]*subscription
	byAgent map[string]map[string]*subscription
	closed  bool

	seq     int64
	pollers sync.WaitGroup
}

// New creates a Registry with the given configuration.
func New(config Config) (*Registry, error) {
	if config.Bus == nil {
		return nil, gferrors.NewValidationError("subscription", "bus", nil, "cannot be nil").
			WithHint("provide a bus adapter")
	}
	if config.PollInterval < 0 {
		return nil, gferrors.NewValidationError("subscription", "pollInterval", config.PollInterval, "cannot be negative").
			WithHint("leave zero for the default interval")
	}
	if config.MaxSamplesPerRead < 0 {
		return nil, gferrors.NewValidationError("subscription", "maxSamplesPerRead", config.MaxSamplesPerRead, "cannot be negative").
			WithHint("leave zero for the default batch size")
	}
	if config.PollInterval == 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	if config.MaxSamplesPerRead == 0 {
		config.MaxSamplesPerRead = 100
	}
	if config.Sink == nil {
		config.Sink = metrics.NopSink{}
	}
	if config.Logger == nil {
		config.Logger = logging.New()
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}

	return &Registry{
		bus:          config.Bus,
		limiter:      config.Limiter,
		sink:         config.Sink,
		logger:       config.Logger.WithComponent("subscription"),
		clock:        config.Clock,
		pollInterval: config.PollInterval,
		maxSamples:   config.MaxSamplesPerRead,
		dispatcher:   config.Dispatcher,
		subs:         make(map[string]*subscription),
		byAgent:      make(map[string]map[string]*subscription),
	}, nil
}

// Subscribe attaches an agent to a topic and returns the subscription ID.
// When a callback is given, a poller goroutine starts delivering sample
// batches until the subscription is torn down. The topic's bus reader is
// materialized immediately so samples written after this call are buffered
// even before the first drain.
func (r *Registry) Subscribe(agent, topic string, opts SubscribeOptions) (string, error) {
	if agent == "" {
		return "", gferrors.NewValidationError("subscription", "agent", agent, "cannot be empty").
			WithHint("provide the subscribing agent's name")
	}
	if topic == "" {
		return "", gferrors.NewValidationError("subscription", "topic", topic, "cannot be empty").
			WithHint("provide a topic name")
	}
	if opts.Async && opts.Callback != nil && r.dispatcher == nil {
		return "", gferrors.NewValidationError("subscription", "async", true, "requires a dispatcher").
			WithHint("configure Config.Dispatcher for async callbacks")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", gferrors.NewOperationError("subscription", "Subscribe", gferrors.ErrClosed)
	}
	sub := &subscription{
		id:       r.nextID(topic),
		topic:    topic,
		agent:    agent,
		callback: opts.Callback,
		async:    opts.Async,
		active:   1,
	}
	r.subs[sub.id] = sub
	if r.byAgent[agent] == nil {
		r.byAgent[agent] = make(map[string]*subscription)
	}
	r.byAgent[agent][sub.id] = sub
	agents := len(r.byAgent)
	if sub.callback != nil {
		r.pollers.Add(1)
	}
	r.mu.Unlock()

	if _, err := r.bus.Read(context.Background(), topic, 0); err != nil {
		// The subscription stands; the poller or a later read retries.
		r.logger.Warn("reader materialization failed", map[string]interface{}{
			"id":    sub.id,
			"topic": topic,
			"error": err,
		})
		r.sink.RecordError("subscribe", "bus_error")
	}

	r.sink.SubscriptionOpened(topic, agent)
	r.sink.SetActiveAgents(agents)
	if sub.callback != nil {
		go r.poll(sub)
	}
	r.logger.Info("subscription created", map[string]interface{}{
		"id":    sub.id,
		"agent": agent,
		"topic": topic,
	})
	return sub.id, nil
}

// nextID derives a subscription ID from the topic and creation time. The
// atomic sequence keeps IDs distinct when two subscriptions to one topic
// land in the same millisecond.
func (r *Registry) nextID(topic string) string {
	seq := atomic.AddInt64(&r.seq, 1)
	return fmt.Sprintf("%s_%d_%d", topic, r.clock.Now().UnixMilli(), seq)
}

// Unsubscribe tears down one subscription. It reports false for unknown
// IDs, which callers treat as an idempotent no-op.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("unsubscribe for unknown subscription", map[string]interface{}{"id": id})
		return false
	}
	sub.deactivate()
	r.removeLocked(sub)
	agents := len(r.byAgent)
	r.mu.Unlock()

	r.sink.SubscriptionClosed(sub.topic)
	r.sink.SetActiveAgents(agents)
	r.logger.Info("subscription removed", map[string]interface{}{
		"id":    id,
		"agent": sub.agent,
		"topic": sub.topic,
	})
	return true
}

// CloseSession tears down every subscription the agent holds and returns
// how many were removed.
func (r *Registry) CloseSession(agent string) int {
	r.mu.Lock()
	byID := r.byAgent[agent]
	subs := make([]*subscription, 0, len(byID))
	for _, sub := range byID {
		sub.deactivate()
		r.removeLocked(sub)
		subs = append(subs, sub)
	}
	agents := len(r.byAgent)
	r.mu.Unlock()

	if len(subs) == 0 {
		return 0
	}
	for _, sub := range subs {
		r.sink.SubscriptionClosed(sub.topic)
	}
	r.sink.SetActiveAgents(agents)
	r.logger.Info("session closed", map[string]interface{}{
		"agent":         agent,
		"subscriptions": len(subs),
	})
	return len(subs)
}

// Close tears down every session and waits for all pollers to exit.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return gferrors.NewOperationError("subscription", "Close", gferrors.ErrClosed)
	}
	r.closed = true
	subs := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		sub.deactivate()
		subs = append(subs, sub)
	}
	r.subs = make(map[string]*subscription)
	r.byAgent = make(map[string]map[string]*subscription)
	r.mu.Unlock()

	for _, sub := range subs {
		r.sink.SubscriptionClosed(sub.topic)
	}
	r.sink.SetActiveAgents(0)
	r.pollers.Wait()
	r.logger.Info("registry closed", map[string]interface{}{"subscriptions": len(subs)})
	return nil
}

// removeLocked drops the subscription from both indexes. Caller holds r.mu.
func (r *Registry) removeLocked(sub *subscription) {
	delete(r.subs, sub.id)
	if byID, ok := r.byAgent[sub.agent]; ok {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(r.byAgent, sub.agent)
		}
	}
}

// Subscriptions returns a sorted snapshot of the agent's subscription IDs.
func (r *Registry) Subscriptions(agent string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID := r.byAgent[agent]
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Counts returns the number of live subscriptions and of agents holding
// at least one.
func (r *Registry) Counts() (subscriptions, agents int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs), len(r.byAgent)
}
