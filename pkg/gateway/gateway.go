package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/gateflow/pkg/bus"
	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/config"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/metrics"
	"github.com/vnykmshr/gateflow/pkg/permission"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/tiered"
	"github.com/vnykmshr/gateflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/gateflow/pkg/scheduling/workerpool"
	"github.com/vnykmshr/gateflow/pkg/subscription"
)

// Default tuning applied by New when Config leaves a field zero.
const (
	DefaultMaxSamplesPerRead = 100
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultCallbackWorkers   = 4
	DefaultCallbackQueue     = 64
	DefaultAdaptiveInterval  = time.Second

	// DefaultReadLimit applies when a read request does not name a
	// positive maxSamples.
	DefaultReadLimit = 10
)

// Scheduled job identifiers.
const (
	adaptiveJobID = "adaptive_control"
	statsJobID    = "stats_log"
)

// LoadSource reports the current system load as a fraction in [0, 1].
// Sampled periodically by the adaptive control loop.
type LoadSource func() float64

// Config wires a Gateway's collaborators.
type Config struct {
	// Bus transports samples between agents (required).
	Bus bus.Bus

	// Guard authorizes per-agent topic access (required).
	Guard *permission.Guard

	// Limiter admits data-plane operations. Nil disables rate limiting.
	Limiter *tiered.Limiter

	// Adaptive lowers and restores the limiter's global rate from load
	// samples. Requires LoadSource.
	Adaptive *tiered.Adaptive

	// LoadSource feeds the adaptive control loop.
	LoadSource LoadSource

	// AdaptiveInterval is the load sampling period (default 1s).
	AdaptiveInterval time.Duration

	// Types is the topic type table backing topic introspection.
	Types map[string]config.TypeDefinition

	// Sink receives operational metrics. Defaults to metrics.NopSink.
	Sink metrics.Sink

	// Logger receives gateway diagnostics. Defaults to a logger with
	// the "gateway" component.
	Logger *logging.Logger

	// Clock supplies time for subscription IDs, stats, and durations.
	// Defaults to the system clock.
	Clock bucket.Clock

	// MaxSamplesPerRead caps one read's batch size (default 100).
	MaxSamplesPerRead int

	// PollInterval is the subscription poll period (default 100ms).
	PollInterval time.Duration

	// CallbackWorkers and CallbackQueue size the shared dispatch pool
	// used for async callbacks and scheduled jobs (defaults 4 and 64).
	CallbackWorkers int
	CallbackQueue   int

	// StatsLogSchedule is a cron expression (with a seconds column) for
	// the periodic stats log line. Empty disables the job.
	StatsLogSchedule string
}

// Gateway is the operation boundary in front of a sample bus: every
// call is authorized by the permission guard, admitted by the rate
// limiter, and only then dispatched to the bus. Collaborator failures
// become failure results, never panics.
type Gateway struct {
	bus        bus.Bus
	guard      *permission.Guard
	limiter    *tiered.Limiter
	adaptive   *tiered.Adaptive
	loadSource LoadSource

	types map[string]config.TypeDefinition

	registry   *subscription.Registry
	dispatcher workerpool.Pool
	sched      scheduler.Scheduler

	sink   metrics.Sink
	logger *logging.Logger
	clock  bucket.Clock

	maxSamples       int
	adaptiveInterval time.Duration
	statsSchedule    string

	instanceID string
	startTime  time.Time

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds a gateway from its collaborators. The subscription
// registry, callback dispatch pool, and maintenance scheduler are
// created here and owned by the gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Bus == nil {
		return nil, gferrors.NewValidationError("gateway", "bus", nil, "cannot be nil").
			WithHint("provide a bus adapter")
	}
	if cfg.Guard == nil {
		return nil, gferrors.NewValidationError("gateway", "guard", nil, "cannot be nil").
			WithHint("provide a permission guard")
	}
	if cfg.Adaptive != nil && cfg.LoadSource == nil {
		return nil, gferrors.NewValidationError("gateway", "loadSource", nil, "required with an adaptive controller").
			WithHint("provide a load source returning values in [0, 1]")
	}
	if cfg.MaxSamplesPerRead < 0 {
		return nil, gferrors.NewValidationError("gateway", "maxSamplesPerRead", cfg.MaxSamplesPerRead, "cannot be negative")
	}
	if cfg.PollInterval < 0 {
		return nil, gferrors.NewValidationError("gateway", "pollInterval", cfg.PollInterval, "cannot be negative")
	}
	if cfg.AdaptiveInterval < 0 {
		return nil, gferrors.NewValidationError("gateway", "adaptiveInterval", cfg.AdaptiveInterval, "cannot be negative")
	}
	if cfg.CallbackWorkers < 0 || cfg.CallbackQueue < 0 {
		return nil, gferrors.NewValidationError("gateway", "callbackWorkers", cfg.CallbackWorkers, "cannot be negative")
	}

	sink := cfg.Sink
	if sink == nil {
		sink = metrics.NopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New().WithComponent("gateway")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = bucket.SystemClock{}
	}

	maxSamples := cfg.MaxSamplesPerRead
	if maxSamples == 0 {
		maxSamples = DefaultMaxSamplesPerRead
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	adaptiveInterval := cfg.AdaptiveInterval
	if adaptiveInterval == 0 {
		adaptiveInterval = DefaultAdaptiveInterval
	}
	workers := cfg.CallbackWorkers
	if workers == 0 {
		workers = DefaultCallbackWorkers
	}
	queue := cfg.CallbackQueue
	if queue == 0 {
		queue = DefaultCallbackQueue
	}

	pool := workerpool.New(workers, queue)

	registry, err := subscription.New(subscription.Config{
		Bus:               cfg.Bus,
		Limiter:           cfg.Limiter,
		Sink:              sink,
		Logger:            logger,
		Clock:             clock,
		PollInterval:      pollInterval,
		MaxSamplesPerRead: maxSamples,
		Dispatcher:        pool,
	})
	if err != nil {
		return nil, err
	}

	sched := scheduler.NewWithConfig(scheduler.Config{
		WorkerPool: pool,
		Logger:     logger.WithComponent("scheduler"),
	})

	return &Gateway{
		bus:              cfg.Bus,
		guard:            cfg.Guard,
		limiter:          cfg.Limiter,
		adaptive:         cfg.Adaptive,
		loadSource:       cfg.LoadSource,
		types:            cfg.Types,
		registry:         registry,
		dispatcher:       pool,
		sched:            sched,
		sink:             sink,
		logger:           logger,
		clock:            clock,
		maxSamples:       maxSamples,
		adaptiveInterval: adaptiveInterval,
		statsSchedule:    cfg.StatsLogSchedule,
		instanceID:       uuid.NewString(),
		startTime:        clock.Now(),
	}, nil
}

// Start launches the maintenance scheduler with the adaptive control
// loop and, when configured, the stats log cron job. An invalid cron
// expression fails Start and leaves the gateway stopped.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return gferrors.NewOperationError("gateway", "Start", gferrors.ErrClosed)
	}
	if g.started {
		return gferrors.NewOperationError("gateway", "Start", fmt.Errorf("already started"))
	}

	if err := g.sched.Start(); err != nil {
		return gferrors.NewOperationError("gateway", "Start", err)
	}

	if g.adaptive != nil {
		task := workerpool.TaskFunc(func(ctx context.Context) error {
			g.adaptive.AdjustLimits(g.loadSource())
			return nil
		})
		if err := g.sched.ScheduleRepeating(adaptiveJobID, task, g.adaptiveInterval); err != nil {
			g.teardownScheduler()
			return gferrors.NewOperationError("gateway", "Start", err)
		}
	}

	if g.statsSchedule != "" {
		task := workerpool.TaskFunc(func(ctx context.Context) error {
			g.logStats()
			return nil
		})
		if err := g.sched.ScheduleCron(statsJobID, g.statsSchedule, task); err != nil {
			g.teardownScheduler()
			return gferrors.NewValidationError("gateway", "statsLogSchedule", g.statsSchedule, err.Error()).
				WithHint("use a six-field cron expression such as \"0 * * * * *\"")
		}
	}

	g.started = true
	g.logger.Info("gateway started", map[string]interface{}{
		"instance_id": g.instanceID,
		"adaptive":    g.adaptive != nil,
		"stats_job":   g.statsSchedule != "",
	})
	return nil
}

// teardownScheduler unwinds a partial Start. Must be called with the
// mutex held.
func (g *Gateway) teardownScheduler() {
	g.sched.CancelAll()
	<-g.sched.Stop()
}

// Close stops the scheduler, cascades teardown over every session,
// drains the dispatch pool, and closes the bus. Repeated calls fail
// with ErrClosed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return gferrors.NewOperationError("gateway", "Close", gferrors.ErrClosed)
	}
	g.closed = true
	started := g.started
	g.mu.Unlock()

	if started {
		<-g.sched.Stop()
	}

	err := g.registry.Close()
	<-g.dispatcher.Shutdown()

	if cerr := g.bus.Close(); err == nil {
		err = cerr
	}

	g.logger.Info("gateway closed", map[string]interface{}{
		"instance_id": g.instanceID,
	})
	return err
}

// Ready reports whether the gateway has started and is not closed.
func (g *Gateway) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started && !g.closed
}

// InstanceID identifies this gateway instance for operational surfaces.
func (g *Gateway) InstanceID() string {
	return g.instanceID
}

// StartTime is when the gateway was constructed.
func (g *Gateway) StartTime() time.Time {
	return g.startTime
}

// logStats writes one operational snapshot line, driven by the stats
// cron job.
func (g *Gateway) logStats() {
	subs, agents := g.registry.Counts()
	fields := map[string]interface{}{
		"uptime":        g.clock.Now().Sub(g.startTime).Round(time.Second).String(),
		"subscriptions": subs,
		"agents":        agents,
	}
	if g.limiter != nil {
		snap := g.limiter.Metrics()
		fields["requests"] = snap.TotalRequests
		fields["rejected"] = snap.TotalRejected
		fields["limiting_enabled"] = snap.Enabled
	}
	g.logger.Info("gateway stats", fields)
}
