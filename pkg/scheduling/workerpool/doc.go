/*
Package workerpool provides a fixed-size worker pool for background task
execution.

The pool executes submitted tasks on a bounded number of goroutines with
a bounded queue, giving predictable resource usage under load. Task
errors and panics are logged and counted; they never reach the submitter
and never take a worker down. This fire-and-forget contract suits
callback dispatch and periodic maintenance work, where the submitter has
already moved on by the time the task runs.

Basic usage:

	pool := workerpool.New(4, 64) // 4 workers, queue capacity 64
	defer pool.Shutdown()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		// Do work
		return nil
	})

	if err := pool.Submit(task); err != nil {
		log.Printf("failed to submit: %v", err)
	}

Submission blocks while the queue is full, applying backpressure to the
producer. SubmitWithContext bounds that wait and also becomes the task's
execution context, so canceling the submitter cancels its queued work.

Shutdown stops accepting tasks and waits for workers to finish what they
are executing. Tasks still sitting in the queue at shutdown are dropped.

For observability, NewWithMetrics wraps the pool with Prometheus
counters and gauges (task outcomes, execution duration, queue depth).
*/
package workerpool
