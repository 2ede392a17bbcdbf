package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
)

// Submit adds a task to the pool for execution.
// The task will be executed with context.Background().
// Use SubmitWithContext to provide a custom context.
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given
// context. The context bounds both queuing and the task's execution. If
// the pool has a TaskTimeout configured, the effective execution timeout
// is the minimum of the context deadline and TaskTimeout.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	isShutdown := p.isShutdown
	p.mu.RUnlock()

	if isShutdown {
		return gferrors.NewOperationError("workerpool", "Submit", gferrors.ErrClosed)
	}

	// Check if context is already canceled before attempting to queue.
	// This ensures deterministic behavior for pre-canceled contexts.
	select {
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	default:
	}

	twc := taskWithContext{
		task: task,
		ctx:  ctx,
	}

	select {
	case p.taskQueue <- twc:
		atomic.AddInt64(&p.totalSubmitted, 1)
		return nil
	case <-p.shutdownCh:
		return gferrors.NewOperationError("workerpool", "Submit", gferrors.ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	}
}

// TrySubmit adds a task to the pool only when the queue has room, so
// callers on latency-sensitive paths never wait behind a saturated pool.
func (p *workerPool) TrySubmit(task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	p.mu.RLock()
	isShutdown := p.isShutdown
	p.mu.RUnlock()

	if isShutdown {
		return gferrors.NewOperationError("workerpool", "TrySubmit", gferrors.ErrClosed)
	}

	twc := taskWithContext{
		task: task,
		ctx:  context.Background(),
	}

	select {
	case p.taskQueue <- twc:
		atomic.AddInt64(&p.totalSubmitted, 1)
		return nil
	case <-p.shutdownCh:
		return gferrors.NewOperationError("workerpool", "TrySubmit", gferrors.ErrClosed)
	default:
		return gferrors.NewOperationError("workerpool", "TrySubmit", gferrors.ErrCapacityExceeded)
	}
}

// Shutdown initiates a graceful shutdown of the pool. It can be called
// more than once; every returned channel closes when shutdown completes.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.isShutdown = true
		p.mu.Unlock()

		// Signal shutdown to submitters and workers
		close(p.shutdownCh)

		for i := range p.workers {
			close(p.workers[i].stopCh)
		}

		go func() {
			p.workerWg.Wait()
			close(p.shutdownDone)
		}()
	})

	return p.shutdownDone
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.Workers
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(atomic.LoadInt64(&p.activeWorkers))
}

// TotalSubmitted returns the total number of tasks accepted by Submit.
func (p *workerPool) TotalSubmitted() int64 {
	return atomic.LoadInt64(&p.totalSubmitted)
}

// TotalCompleted returns the total number of tasks that finished without error.
func (p *workerPool) TotalCompleted() int64 {
	return atomic.LoadInt64(&p.totalCompleted)
}

// TotalFailed returns the total number of tasks that returned an error or panicked.
func (p *workerPool) TotalFailed() int64 {
	return atomic.LoadInt64(&p.totalFailed)
}

// run is the main loop for a worker.
func (w *worker) run() {
	defer w.pool.workerWg.Done()
	defer close(w.stopped)

	for {
		select {
		case <-w.stopCh:
			return
		case twc, ok := <-w.pool.taskQueue:
			if !ok {
				return
			}
			w.executeTask(twc)
		}
	}
}

// executeTask executes a single task, recovering panics so one bad task
// never takes a worker down.
func (w *worker) executeTask(twc taskWithContext) {
	atomic.AddInt64(&w.pool.activeWorkers, 1)
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			w.pool.logger.Error("task panicked", map[string]interface{}{
				"worker": w.id,
				"panic":  fmt.Sprintf("%v", r),
				"stack":  string(debug.Stack()),
			})
			atomic.AddInt64(&w.pool.totalFailed, 1)
		} else if err != nil {
			atomic.AddInt64(&w.pool.totalFailed, 1)
			w.pool.logger.Warn("task failed", map[string]interface{}{
				"worker":   w.id,
				"error":    err.Error(),
				"duration": time.Since(start).String(),
			})
		} else {
			atomic.AddInt64(&w.pool.totalCompleted, 1)
		}

		atomic.AddInt64(&w.pool.activeWorkers, -1)
	}()

	ctx := twc.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	// The effective timeout is the minimum of the context deadline and
	// the configured TaskTimeout.
	if w.pool.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.pool.config.TaskTimeout)
		defer cancel()
	}

	err = twc.task.Execute(ctx)
}
