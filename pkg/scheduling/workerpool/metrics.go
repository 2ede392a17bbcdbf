package workerpool

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vnykmshr/gateflow/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewWithMetrics creates a worker pool with metrics enabled on its own
// registry, keyed by the given pool name.
func NewWithMetrics(workers, queueSize int, name string) Pool {
	registry := prometheus.NewRegistry()
	config := metrics.Config{
		Enabled:  true,
		Registry: registry,
	}

	return NewWithConfigAndMetrics(Config{
		Workers:   workers,
		QueueSize: queueSize,
	}, name, config)
}

// NewWithConfigAndMetrics creates a worker pool with custom config and metrics.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) Pool {
	basePool := NewWithConfig(config)

	if !metricsConfig.Enabled {
		return basePool
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		registry = metrics.NewRegistry(metricsConfig.Registry)
	}

	mp := &MetricsPool{
		pool:     basePool,
		name:     name,
		registry: registry,
		enabled:  true,
	}

	mp.updateMetrics()

	return mp
}

// updateMetrics refreshes the pool state gauges.
func (mp *MetricsPool) updateMetrics() {
	if !mp.enabled {
		return
	}

	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit adds a task to the pool for execution.
func (mp *MetricsPool) Submit(task Task) error {
	return mp.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext submits a task with a context for cancellation.
func (mp *MetricsPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return mp.pool.SubmitWithContext(ctx, nil)
	}

	err := mp.pool.SubmitWithContext(ctx, &metricsTask{original: task, pool: mp})

	if mp.enabled {
		mp.updateMetrics()
	}

	return err
}

// TrySubmit submits a task without blocking on a full queue.
func (mp *MetricsPool) TrySubmit(task Task) error {
	if task == nil {
		return mp.pool.TrySubmit(nil)
	}

	err := mp.pool.TrySubmit(&metricsTask{original: task, pool: mp})

	if mp.enabled {
		mp.updateMetrics()
	}

	return err
}

// metricsTask wraps a Task to record execution metrics.
type metricsTask struct {
	original Task
	pool     *MetricsPool
}

// Execute runs the original task and records metrics.
func (mt *metricsTask) Execute(ctx context.Context) error {
	start := time.Now()

	err := mt.original.Execute(ctx)

	if mt.pool.enabled {
		mt.pool.registry.TaskDuration.WithLabelValues(mt.pool.name).Observe(time.Since(start).Seconds())

		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		mt.pool.registry.TasksTotal.WithLabelValues(mt.pool.name, outcome).Inc()

		mt.pool.updateMetrics()
	}

	return err
}

// Shutdown initiates graceful shutdown of the pool.
func (mp *MetricsPool) Shutdown() <-chan struct{} {
	return mp.pool.Shutdown()
}

// Size returns the number of workers in the pool.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	return mp.pool.QueueSize()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (mp *MetricsPool) ActiveWorkers() int {
	return mp.pool.ActiveWorkers()
}

// TotalSubmitted returns the total number of tasks accepted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks that finished without error.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}

// TotalFailed returns the total number of tasks that returned an error or panicked.
func (mp *MetricsPool) TotalFailed() int64 {
	return mp.pool.TotalFailed()
}
