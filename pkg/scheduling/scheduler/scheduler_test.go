package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/gateflow/internal/testutil"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/scheduling/workerpool"
)

func quietLogger() *logging.Logger {
	logger := logging.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestScheduler(t *testing.T, cfg Config) Scheduler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.WorkerPool == nil {
		cfg.WorkerPool = workerpool.NewWithConfig(workerpool.Config{
			Workers:   2,
			QueueSize: 16,
			Logger:    quietLogger(),
		})
		pool := cfg.WorkerPool
		t.Cleanup(func() {
			<-pool.Shutdown()
		})
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	sched := NewWithConfig(cfg)
	t.Cleanup(func() {
		<-sched.Stop()
	})
	return sched
}

func noopTask() workerpool.Task {
	return workerpool.TaskFunc(func(ctx context.Context) error { return nil })
}

func countingTask(counter *int64) workerpool.Task {
	return workerpool.TaskFunc(func(ctx context.Context) error {
		atomic.AddInt64(counter, 1)
		return nil
	})
}

func TestScheduleValidation(t *testing.T) {
	sched := newTestScheduler(t, Config{})

	longID := make([]byte, 256)
	for i := range longID {
		longID[i] = 'x'
	}

	tests := []struct {
		name string
		err  error
	}{
		{"empty id", sched.Schedule("", noopTask(), time.Now())},
		{"nil task", sched.Schedule("job", nil, time.Now())},
		{"zero time", sched.Schedule("job", noopTask(), time.Time{})},
		{"long id", sched.Schedule(string(longID), noopTask(), time.Now())},
		{"zero interval", sched.ScheduleRepeating("job", noopTask(), 0)},
		{"empty cron", sched.ScheduleCron("job", "", noopTask())},
		{"bad cron", sched.ScheduleCron("job", "not a cron", noopTask())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertError(t, tt.err)
		})
	}
}

func TestScheduleDuplicateID(t *testing.T) {
	sched := newTestScheduler(t, Config{})

	testutil.AssertNoError(t, sched.ScheduleRepeating("job", noopTask(), time.Hour))
	testutil.AssertError(t, sched.ScheduleRepeating("job", noopTask(), time.Hour))

	// Canceling frees the ID.
	testutil.AssertEqual(t, sched.Cancel("job"), true)
	testutil.AssertNoError(t, sched.ScheduleRepeating("job", noopTask(), time.Hour))
}

func TestMaxTasks(t *testing.T) {
	sched := newTestScheduler(t, Config{MaxTasks: 2})

	testutil.AssertNoError(t, sched.ScheduleRepeating("a", noopTask(), time.Hour))
	testutil.AssertNoError(t, sched.ScheduleRepeating("b", noopTask(), time.Hour))
	testutil.AssertError(t, sched.ScheduleRepeating("c", noopTask(), time.Hour))
}

func TestOneTimeTaskRuns(t *testing.T) {
	sched := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, sched.Start())

	var executed int64
	testutil.AssertNoError(t, sched.ScheduleAfter("once", countingTask(&executed), 20*time.Millisecond))

	testutil.WaitForInt64(t, &executed, 1, testutil.TestTimeout)

	// One-time tasks remove themselves after running.
	testutil.Eventually(t, func() bool {
		return len(sched.List()) == 0
	}, testutil.TestTimeout, testutil.DefaultPollInterval)
}

func TestRepeatingTaskRuns(t *testing.T) {
	sched := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, sched.Start())

	var executed int64
	testutil.AssertNoError(t, sched.ScheduleRepeating("tick", countingTask(&executed), 20*time.Millisecond))

	testutil.Eventually(t, func() bool {
		return atomic.LoadInt64(&executed) >= 3
	}, testutil.TestTimeout, testutil.DefaultPollInterval)

	// Repeating tasks stay scheduled.
	testutil.AssertEqual(t, len(sched.List()), 1)
}

func TestCronTaskRuns(t *testing.T) {
	sched := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, sched.Start())

	var executed int64
	// Every second, at every second.
	testutil.AssertNoError(t, sched.ScheduleCron("cron", "* * * * * *", countingTask(&executed)))

	testutil.Eventually(t, func() bool {
		return atomic.LoadInt64(&executed) >= 1
	}, 3*time.Second, testutil.DefaultPollInterval)
}

func TestCancelStopsTask(t *testing.T) {
	sched := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, sched.Start())

	var executed int64
	testutil.AssertNoError(t, sched.ScheduleRepeating("tick", countingTask(&executed), 20*time.Millisecond))

	testutil.Eventually(t, func() bool {
		return atomic.LoadInt64(&executed) >= 1
	}, testutil.TestTimeout, testutil.DefaultPollInterval)

	testutil.AssertEqual(t, sched.Cancel("tick"), true)
	testutil.AssertEqual(t, sched.Cancel("tick"), false)

	// Give in-flight work a moment, then verify the count is stable.
	time.Sleep(50 * time.Millisecond)
	settled := atomic.LoadInt64(&executed)
	time.Sleep(100 * time.Millisecond)
	testutil.AssertEqual(t, atomic.LoadInt64(&executed), settled)
}

func TestCancelAll(t *testing.T) {
	sched := newTestScheduler(t, Config{})

	testutil.AssertNoError(t, sched.ScheduleRepeating("a", noopTask(), time.Hour))
	testutil.AssertNoError(t, sched.ScheduleRepeating("b", noopTask(), time.Hour))
	testutil.AssertEqual(t, len(sched.List()), 2)

	sched.CancelAll()
	testutil.AssertEqual(t, len(sched.List()), 0)
}

func TestListSortedByRunTime(t *testing.T) {
	sched := newTestScheduler(t, Config{})

	now := time.Now()
	testutil.AssertNoError(t, sched.Schedule("later", noopTask(), now.Add(2*time.Hour)))
	testutil.AssertNoError(t, sched.Schedule("sooner", noopTask(), now.Add(time.Hour)))

	tasks := sched.List()
	testutil.AssertEqual(t, len(tasks), 2)
	testutil.AssertEqual(t, tasks[0].ID, "sooner")
	testutil.AssertEqual(t, tasks[1].ID, "later")
}

func TestStartTwice(t *testing.T) {
	sched := newTestScheduler(t, Config{})

	testutil.AssertNoError(t, sched.Start())
	testutil.AssertError(t, sched.Start())
}

func TestRestartAfterStop(t *testing.T) {
	sched := newTestScheduler(t, Config{})

	testutil.AssertNoError(t, sched.Start())
	<-sched.Stop()

	testutil.AssertNoError(t, sched.Start())

	var executed int64
	testutil.AssertNoError(t, sched.ScheduleRepeating("tick", countingTask(&executed), 20*time.Millisecond))
	testutil.Eventually(t, func() bool {
		return atomic.LoadInt64(&executed) >= 1
	}, testutil.TestTimeout, testutil.DefaultPollInterval)
}
