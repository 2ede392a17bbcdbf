package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/gateflow/pkg/common/validation"
	"github.com/vnykmshr/gateflow/pkg/logging"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Pool executes submitted tasks on a fixed set of worker goroutines.
// Task failures and panics are logged, never propagated to the caller.
type Pool interface {
	// Submit queues a task for execution. It blocks while the queue is
	// full and returns an error once the pool is shut down.
	Submit(task Task) error

	// SubmitWithContext queues a task, giving up when the context ends.
	// The context also becomes the task's execution context.
	SubmitWithContext(ctx context.Context, task Task) error

	// TrySubmit queues a task only when the queue has room. A full queue
	// returns an error wrapping ErrCapacityExceeded instead of blocking.
	TrySubmit(task Task) error

	// Shutdown stops the pool. No new tasks are accepted; the returned
	// channel closes once every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the number of tasks waiting for a worker.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks accepted by Submit.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks that finished
	// without error.
	TotalCompleted() int64

	// TotalFailed returns the total number of tasks that returned an
	// error or panicked.
	TotalFailed() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Workers is the number of worker goroutines. Must be positive.
	Workers int

	// QueueSize is the task queue capacity. Submitters block while the
	// queue is full. Must be positive.
	QueueSize int

	// TaskTimeout bounds each task's execution context. Zero means no
	// timeout.
	TaskTimeout time.Duration

	// Logger receives task failure and panic diagnostics. Defaults to a
	// logger with the "workerpool" component.
	Logger *logging.Logger
}

// taskWithContext pairs a queued task with its submission context.
type taskWithContext struct {
	task Task
	ctx  context.Context
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config
	logger *logging.Logger

	workers      []worker
	taskQueue    chan taskWithContext
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
	shutdownOnce sync.Once

	mu         sync.RWMutex
	isShutdown bool

	activeWorkers  int64
	totalSubmitted int64
	totalCompleted int64
	totalFailed    int64

	workerWg sync.WaitGroup
}

// worker represents a single worker in the pool.
type worker struct {
	id      int
	pool    *workerPool
	stopCh  chan struct{}
	stopped chan struct{}
}

// New creates a worker pool with the given worker count and queue
// capacity. Panics if the configuration is invalid.
func New(workers, queueSize int) Pool {
	pool, err := NewSafe(workers, queueSize)
	if err != nil {
		panic(err)
	}
	return pool
}

// NewSafe creates a worker pool, returning an error for invalid
// configuration instead of panicking.
func NewSafe(workers, queueSize int) (Pool, error) {
	return NewWithConfigSafe(Config{
		Workers:   workers,
		QueueSize: queueSize,
	})
}

// NewWithConfig creates a worker pool with custom configuration.
// Panics if the configuration is invalid.
func NewWithConfig(config Config) Pool {
	pool, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return pool
}

// NewWithConfigSafe creates a worker pool with custom configuration,
// returning an error for invalid configuration.
func NewWithConfigSafe(config Config) (Pool, error) {
	if err := validation.ValidatePositive("workerpool", "workers", config.Workers); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("workerpool", "queueSize", config.QueueSize); err != nil {
		return nil, err
	}
	if config.TaskTimeout < 0 {
		config.TaskTimeout = 0
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.New().WithComponent("workerpool")
	}

	pool := &workerPool{
		config:       config,
		logger:       logger,
		taskQueue:    make(chan taskWithContext, config.QueueSize),
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}

	pool.workers = make([]worker, config.Workers)
	for i := 0; i < config.Workers; i++ {
		pool.workers[i] = worker{
			id:      i,
			pool:    pool,
			stopCh:  make(chan struct{}),
			stopped: make(chan struct{}),
		}
		pool.workerWg.Add(1)
		go pool.workers[i].run()
	}

	return pool, nil
}
