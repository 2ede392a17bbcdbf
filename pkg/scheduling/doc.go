/*
Package scheduling provides the task execution primitives behind the
gateway's background work.

Two subpackages cover the patterns the gateway needs:

  - workerpool: Fixed worker pool for concurrent task execution
  - scheduler: Time-based task scheduling with cron support

Worker Pool:

The worker pool provides controlled concurrent execution. Task failures
and panics are logged, never propagated:

	pool := workerpool.New(4, 100) // 4 workers, queue size 100
	defer func() { <-pool.Shutdown() }()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		// Do work
		return nil
	})

	_ = pool.Submit(task)

Scheduler:

The scheduler runs tasks at points in time, executing them on a worker
pool. Repeating tasks drive the gateway's adaptive rate control loop;
cron tasks drive its periodic stats log:

	sched := scheduler.New()
	_ = sched.Start()
	defer func() { <-sched.Stop() }()

	// One-time task
	_ = sched.ScheduleAfter("warmup", task, time.Minute)

	// Recurring task
	_ = sched.ScheduleRepeating("load_sample", task, time.Second)

	// Cron-style scheduling (six fields, with seconds)
	_ = sched.ScheduleCron("stats", "0 * * * * *", task)

All scheduling components are safe for concurrent use and observe
context cancellation while tasks run.
*/
package scheduling
