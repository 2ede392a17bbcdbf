// Package scheduler provides time-based task scheduling on a worker pool.
//
// Tasks can run once at a point in time, repeat on a fixed interval, or
// follow a cron expression. A single ticker goroutine moves ready tasks to
// the worker pool, so scheduling precision is bounded by the tick interval
// (50ms by default), which suits periodic maintenance work rather than
// hard-realtime triggers.
//
// Basic usage:
//
//	sched := scheduler.New()
//	if err := sched.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer sched.Stop()
//
//	// Repeat every second
//	_ = sched.ScheduleRepeating("load-check", workerpool.TaskFunc(func(ctx context.Context) error {
//		// sample load, adjust limits
//		return nil
//	}), time.Second)
//
//	// Cron with a seconds column: every five minutes
//	_ = sched.ScheduleCron("stats-log", "0 */5 * * * *", statsTask)
//
// Task IDs are unique; scheduling a duplicate ID fails until the existing
// task is canceled. Repeating and cron tasks stay scheduled until canceled,
// one-time tasks remove themselves after running.
package scheduler
