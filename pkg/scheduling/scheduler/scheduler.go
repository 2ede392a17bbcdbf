package scheduler

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/scheduling/workerpool"
)

// Task describes a scheduled task.
type Task struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // Zero for one-time tasks
	Created  time.Time
}

// Scheduler runs tasks at points in time: once, on an interval, or on a
// cron expression. Ready tasks execute on a worker pool.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, task workerpool.Task, runAt time.Time) error
	ScheduleAfter(id string, task workerpool.Task, delay time.Duration) error
	ScheduleRepeating(id string, task workerpool.Task, interval time.Duration) error

	// Cron scheduling (six-field expressions with a seconds column)
	ScheduleCron(id string, cronExpr string, task workerpool.Task) error

	// Task management
	Cancel(id string) bool
	CancelAll()
	List() []Task

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Config holds scheduler configuration.
type Config struct {
	// WorkerPool executes ready tasks. When nil the scheduler creates
	// and owns a small pool.
	WorkerPool workerpool.Pool

	// Location resolves cron expressions (default: time.Local).
	Location *time.Location

	// TickInterval is how often ready tasks are checked for (default: 50ms).
	TickInterval time.Duration

	// MaxTasks caps the number of scheduled tasks (default: 10000).
	MaxTasks int

	// Logger receives run-loop diagnostics. Defaults to a logger with
	// the "scheduler" component.
	Logger *logging.Logger
}

type scheduledTask struct {
	id           string
	task         workerpool.Task
	runAt        time.Time
	interval     time.Duration
	cronSchedule cron.Schedule
	created      time.Time
}

type scheduler struct {
	pool         workerpool.Pool
	ownPool      bool
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	cronParser   cron.Parser
	logger       *logging.Logger

	mu      sync.RWMutex
	tasks   map[string]*scheduledTask
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

// New creates a scheduler with default configuration.
func New() Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) Scheduler {
	pool := cfg.WorkerPool
	ownPool := false
	if pool == nil {
		pool = workerpool.New(4, 100)
		ownPool = true
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10000
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New().WithComponent("scheduler")
	}

	return &scheduler{
		pool:         pool,
		ownPool:      ownPool,
		location:     location,
		tickInterval: tickInterval,
		maxTasks:     maxTasks,
		cronParser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:       logger,
		tasks:        make(map[string]*scheduledTask),
		done:         make(chan struct{}),
	}
}

// validateID checks the common task identity rules.
func validateID(id string, task workerpool.Task) error {
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("task ID too long (max 255 characters)")
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	return nil
}

// addLocked inserts a task, enforcing uniqueness and the task cap.
// Must be called with the mutex held.
func (s *scheduler) addLocked(st *scheduledTask) error {
	if _, exists := s.tasks[st.id]; exists {
		return fmt.Errorf("task with ID %q already exists, use a different ID or cancel the existing task first", st.id)
	}
	if len(s.tasks) >= s.maxTasks {
		return fmt.Errorf("cannot schedule task: maximum number of tasks (%d) reached", s.maxTasks)
	}
	s.tasks[st.id] = st
	return nil
}

func (s *scheduler) Schedule(id string, task workerpool.Task, runAt time.Time) error {
	if err := validateID(id, task); err != nil {
		return err
	}
	if runAt.IsZero() {
		return fmt.Errorf("task run time cannot be zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(&scheduledTask{
		id:      id,
		task:    task,
		runAt:   runAt,
		created: time.Now(),
	})
}

func (s *scheduler) ScheduleAfter(id string, task workerpool.Task, delay time.Duration) error {
	return s.Schedule(id, task, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, task workerpool.Task, interval time.Duration) error {
	if err := validateID(id, task); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	return s.addLocked(&scheduledTask{
		id:       id,
		task:     task,
		runAt:    now,
		interval: interval,
		created:  now,
	})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, task workerpool.Task) error {
	if err := validateID(id, task); err != nil {
		return err
	}
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}

	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	return s.addLocked(&scheduledTask{
		id:           id,
		task:         task,
		runAt:        schedule.Next(now.In(s.location)),
		cronSchedule: schedule,
		created:      now,
	})
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		delete(s.tasks, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*scheduledTask)
}

func (s *scheduler) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, Task{
			ID:       t.id,
			RunAt:    t.runAt,
			Interval: t.interval,
			Created:  t.created,
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].RunAt.Before(tasks[j].RunAt)
	})

	return tasks
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}

	s.running = true
	s.done = make(chan struct{})
	s.ticker = time.NewTicker(s.tickInterval)

	go s.run(s.ticker, s.done)
	return nil
}

func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.done)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if s.ownPool {
			<-s.pool.Shutdown()
		}
	}()

	return stopped
}

func (s *scheduler) run(ticker *time.Ticker, done chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.safeProcess()
		}
	}
}

// safeProcess keeps a panic in task bookkeeping from killing the loop.
func (s *scheduler) safeProcess() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task processing panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			})
		}
	}()
	s.processReadyTasks()
}

func (s *scheduler) processReadyTasks() {
	now := time.Now()

	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}

	readyTasks := make([]*scheduledTask, 0, len(s.tasks))

	for id, task := range s.tasks {
		if now.After(task.runAt) || now.Equal(task.runAt) {
			readyTasks = append(readyTasks, task)

			if task.interval > 0 {
				task.runAt = now.Add(task.interval)
			} else if task.cronSchedule != nil {
				task.runAt = task.cronSchedule.Next(now.In(s.location))
			} else {
				delete(s.tasks, id)
			}
		}
	}
	s.mu.Unlock()

	for _, task := range readyTasks {
		if err := s.pool.Submit(task.task); err != nil {
			s.logger.Warn("task submission failed", map[string]interface{}{
				"task":  task.id,
				"error": err.Error(),
			})
		}
	}
}
