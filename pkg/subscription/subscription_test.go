package subscription

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/gateflow/internal/testutil"
	"github.com/vnykmshr/gateflow/pkg/bus"
	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/tiered"
	"github.com/vnykmshr/gateflow/pkg/scheduling/workerpool"
)

const testInterval = 10 * time.Millisecond

func testLogger() *logging.Logger {
	logger := logging.New()
	logger.SetOutput(io.Discard)
	return logger
}

// countingBus wraps a bus and counts Read calls so tests can observe
// poller activity and termination.
type countingBus struct {
	bus.Bus
	reads int64
}

func (c *countingBus) Read(ctx context.Context, topic string, max int) ([]bus.Sample, error) {
	atomic.AddInt64(&c.reads, 1)
	return c.Bus.Read(ctx, topic, max)
}

func (c *countingBus) readCount() int64 {
	return atomic.LoadInt64(&c.reads)
}

// recordingSink captures sink events relevant to poller behavior.
type recordingSink struct {
	mu           sync.Mutex
	rateLimited  int
	errors       map[string]int
	activeAgents int
	opened       int
	closed       int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{errors: make(map[string]int)}
}

func (s *recordingSink) RecordRequest(operation, agent, status string)            {}
func (s *recordingSink) ObserveRequestDuration(operation string, d time.Duration) {}
func (s *recordingSink) RecordSamples(topic, direction string, n int)             {}
func (s *recordingSink) RecordPermissionDenied(agent, topic, operation string)    {}

func (s *recordingSink) RecordRateLimitExceeded(agent, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited++
}

func (s *recordingSink) RecordError(operation, errorType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[errorType]++
}

func (s *recordingSink) SubscriptionOpened(topic, agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
}

func (s *recordingSink) SubscriptionClosed(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *recordingSink) SetActiveAgents(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeAgents = n
}

func (s *recordingSink) rateLimitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimited
}

func (s *recordingSink) errorCount(errorType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors[errorType]
}

func (s *recordingSink) agents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeAgents
}

func newTestRegistry(t *testing.T, config Config) *Registry {
	t.Helper()
	if config.Bus == nil {
		config.Bus = bus.NewMemory()
	}
	if config.PollInterval == 0 {
		config.PollInterval = testInterval
	}
	if config.Logger == nil {
		config.Logger = testLogger()
	}
	registry, err := New(config)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"nil bus", Config{}},
		{"negative poll interval", Config{Bus: bus.NewMemory(), PollInterval: -time.Second}},
		{"negative max samples", Config{Bus: bus.NewMemory(), MaxSamplesPerRead: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			testutil.AssertError(t, err)
			testutil.AssertEqual(t, gferrors.IsValidationError(err), true)
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	registry := newTestRegistry(t, Config{})

	_, err := registry.Subscribe("", "vehicle/speed", SubscribeOptions{})
	testutil.AssertError(t, err)

	_, err = registry.Subscribe("agent", "", SubscribeOptions{})
	testutil.AssertError(t, err)

	_, err = registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(string, []bus.Sample) {},
		Async:    true,
	})
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, gferrors.IsValidationError(err), true)
}

func TestSubscriptionIDsAreUnique(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	registry := newTestRegistry(t, Config{Clock: clock})

	// Frozen clock: both subscriptions land in the same millisecond.
	first, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{})
	testutil.AssertNoError(t, err)
	second, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{})
	testutil.AssertNoError(t, err)

	testutil.AssertNotEqual(t, first, second)
	if !strings.HasPrefix(first, "vehicle/speed_") {
		t.Errorf("id %q should start with the topic", first)
	}
}

func TestManualSubscriptionMaterializesReader(t *testing.T) {
	b := bus.NewMemory()
	registry := newTestRegistry(t, Config{Bus: b})
	ctx := context.Background()

	_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{})
	testutil.AssertNoError(t, err)

	// The write lands after Subscribe, so the reader must already exist.
	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("4.2")))

	samples, err := b.Read(ctx, "vehicle/speed", 10)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(samples), 1)
	testutil.AssertEqual(t, string(samples[0].Data), "4.2")
}

func TestCallbackDelivery(t *testing.T) {
	b := bus.NewMemory()
	registry := newTestRegistry(t, Config{Bus: b})
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(topic string, samples []bus.Sample) {
			mu.Lock()
			defer mu.Unlock()
			for _, s := range samples {
				got = append(got, string(s.Data))
			}
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("4.2")))
	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("4.6")))

	testutil.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, testutil.TestTimeout, testutil.DefaultPollInterval)

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, got[0], "4.2")
	testutil.AssertEqual(t, got[1], "4.6")
}

func TestAsyncCallbackDelivery(t *testing.T) {
	pool := workerpool.New(2, 16)
	t.Cleanup(func() { <-pool.Shutdown() })

	b := bus.NewMemory()
	registry := newTestRegistry(t, Config{Bus: b, Dispatcher: pool})
	ctx := context.Background()

	tracker := testutil.NewCallbackTracker()
	_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(topic string, samples []bus.Sample) {
			tracker.Mark(string(samples[0].Data))
		},
		Async: true,
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("4.2")))

	testutil.Eventually(t, func() bool {
		return tracker.Called()
	}, testutil.TestTimeout, testutil.DefaultPollInterval)
	testutil.AssertEqual(t, tracker.Value().(string), "4.2")
}

func TestCallbackPanicDoesNotKillPoller(t *testing.T) {
	b := bus.NewMemory()
	sink := newRecordingSink()
	registry := newTestRegistry(t, Config{Bus: b, Sink: sink})
	ctx := context.Background()

	var calls int32
	_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(topic string, samples []bus.Sample) {
			if atomic.AddInt32(&calls, 1) == 1 {
				panic("consumer bug")
			}
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("boom")))
	testutil.WaitForInt32(t, &calls, 1, testutil.TestTimeout)

	// The poller survived the panic and keeps delivering.
	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("fine")))
	testutil.WaitForInt32(t, &calls, 2, testutil.TestTimeout)
	testutil.AssertEqual(t, sink.errorCount("callback_panic"), 1)
}

func TestPollerSurvivesBusErrors(t *testing.T) {
	inner := bus.NewMemory()
	// Closing the inner bus makes every poll read fail.
	cb := &countingBus{Bus: inner}
	sink := newRecordingSink()
	registry := newTestRegistry(t, Config{Bus: cb, Sink: sink})

	_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(string, []bus.Sample) {},
	})
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, inner.Close())

	testutil.Eventually(t, func() bool {
		return sink.errorCount("bus_error") >= 2
	}, testutil.TestTimeout, testutil.DefaultPollInterval)

	// Still polling after repeated errors.
	before := cb.readCount()
	testutil.Eventually(t, func() bool {
		return cb.readCount() > before
	}, testutil.TestTimeout, testutil.DefaultPollInterval)
}

func TestRateLimitedPollerBacksOffAndRecovers(t *testing.T) {
	b := bus.NewMemory()
	sink := newRecordingSink()
	// Two global tokens refilled at 10/s: most 10ms polls are rejected.
	limiter := tiered.New(600, 2, 600)
	registry := newTestRegistry(t, Config{Bus: b, Sink: sink, Limiter: limiter})
	ctx := context.Background()

	tracker := testutil.NewCallbackTracker()
	_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(topic string, samples []bus.Sample) { tracker.Mark() },
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, b.Write(ctx, "vehicle/speed", []byte("4.2")))

	testutil.Eventually(t, func() bool {
		return sink.rateLimitedCount() > 0
	}, testutil.TestTimeout, testutil.DefaultPollInterval)

	// Rejections back the poller off but never stop it; delivery still
	// happens once tokens refill.
	testutil.Eventually(t, func() bool {
		return tracker.Called()
	}, testutil.TestTimeout, testutil.DefaultPollInterval)
}

func TestUnsubscribeStopsPolling(t *testing.T) {
	cb := &countingBus{Bus: bus.NewMemory()}
	registry := newTestRegistry(t, Config{Bus: cb})

	id, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{
		Callback: func(string, []bus.Sample) {},
	})
	testutil.AssertNoError(t, err)

	testutil.Eventually(t, func() bool {
		return cb.readCount() > 2
	}, testutil.TestTimeout, testutil.DefaultPollInterval)

	testutil.AssertEqual(t, registry.Unsubscribe(id), true)

	subs, agents := registry.Counts()
	testutil.AssertEqual(t, subs, 0)
	testutil.AssertEqual(t, agents, 0)

	// The poller exits within one interval plus one in-flight read.
	testutil.Eventually(t, func() bool {
		before := cb.readCount()
		time.Sleep(3 * testInterval)
		return cb.readCount() == before
	}, testutil.TestTimeout, testutil.DefaultPollInterval)
}

func TestUnsubscribeUnknownID(t *testing.T) {
	registry := newTestRegistry(t, Config{})

	testutil.AssertEqual(t, registry.Unsubscribe("vehicle/speed_0_999"), false)

	// Unsubscribe is idempotent: tearing down twice reports unknown.
	id, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, registry.Unsubscribe(id), true)
	testutil.AssertEqual(t, registry.Unsubscribe(id), false)
}

func TestCloseSessionCascades(t *testing.T) {
	sink := newRecordingSink()
	registry := newTestRegistry(t, Config{Sink: sink})

	for _, topic := range []string{"vehicle/speed", "vehicle/heading", "vehicle/battery"} {
		_, err := registry.Subscribe("control_agent", topic, SubscribeOptions{})
		testutil.AssertNoError(t, err)
	}
	_, err := registry.Subscribe("dashboard", "vehicle/speed", SubscribeOptions{})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, registry.CloseSession("control_agent"), 3)

	subs, agents := registry.Counts()
	testutil.AssertEqual(t, subs, 1)
	testutil.AssertEqual(t, agents, 1)
	testutil.AssertEqual(t, len(registry.Subscriptions("control_agent")), 0)
	testutil.AssertEqual(t, len(registry.Subscriptions("dashboard")), 1)
	testutil.AssertEqual(t, sink.agents(), 1)

	// Closing an empty session is a no-op.
	testutil.AssertEqual(t, registry.CloseSession("control_agent"), 0)
}

func TestSubscriptionsSorted(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	registry := newTestRegistry(t, Config{Clock: clock})

	for i := 0; i < 3; i++ {
		_, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{})
		testutil.AssertNoError(t, err)
		clock.Advance(time.Millisecond)
	}

	ids := registry.Subscriptions("agent")
	testutil.AssertEqual(t, len(ids), 3)
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("ids not sorted: %q before %q", ids[i-1], ids[i])
		}
	}
}

func TestCloseTearsDownEverything(t *testing.T) {
	cb := &countingBus{Bus: bus.NewMemory()}
	sink := newRecordingSink()
	config := Config{Bus: cb, Sink: sink, PollInterval: testInterval, Logger: testLogger()}
	registry, err := New(config)
	testutil.AssertNoError(t, err)

	for _, agent := range []string{"a", "b"} {
		_, err := registry.Subscribe(agent, "vehicle/speed", SubscribeOptions{
			Callback: func(string, []bus.Sample) {},
		})
		testutil.AssertNoError(t, err)
	}

	// Close waits for both pollers to exit.
	testutil.AssertNoError(t, registry.Close())

	subs, agents := registry.Counts()
	testutil.AssertEqual(t, subs, 0)
	testutil.AssertEqual(t, agents, 0)
	testutil.AssertEqual(t, sink.agents(), 0)

	before := cb.readCount()
	time.Sleep(3 * testInterval)
	testutil.AssertEqual(t, cb.readCount(), before)

	// Closed registry rejects further work.
	err = registry.Close()
	testutil.AssertError(t, err)
	_, err = registry.Subscribe("a", "vehicle/speed", SubscribeOptions{})
	testutil.AssertError(t, err)
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	registry := newTestRegistry(t, Config{})

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				id, err := registry.Subscribe("agent", "vehicle/speed", SubscribeOptions{})
				if err != nil {
					t.Error(err)
					return
				}
				if !registry.Unsubscribe(id) {
					t.Errorf("subscription %q vanished", id)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	subs, agents := registry.Counts()
	testutil.AssertEqual(t, subs, 0)
	testutil.AssertEqual(t, agents, 0)
}
