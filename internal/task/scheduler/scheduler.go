package scheduler

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"taskloop/internal/eventbus"
	"taskloop/internal/task"
	"taskloop/internal/task/registry"
	logx "taskloop/pkg/logx"
)

type Scheduler struct {
	reg *registry.Registry

	log       logx.Logger
	bus       eventbus.Bus
	clock     Clock
	onFailure FailureHandler

	pollInterval    atomic.Duration
	failureLogEvery atomic.Duration

	running    atomic.Bool
	cycles     atomic.Uint64
	executions atomic.Uint64
	failures   atomic.Uint64
	panics     atomic.Uint64

	// Per-task failure bookkeeping, keyed by name. Cleared on AddTask and
	// RemoveTask, and only written for the registered instance of a name.
	// Lock order: fmu before the registry's mutex.
	fmu    sync.Mutex
	streak map[string]int
	warn   map[string]*failureWarn
}

type failureWarn struct {
	lim        *rate.Limiter
	every      time.Duration
	suppressed int
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:    registry.New(),
		clock:  systemClock{},
		streak: map[string]int{},
		warn:   map[string]*failureWarn{},
	}
	s.pollInterval.Store(DefaultPollInterval)
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// AddTask registers t. It fails with *task.DuplicateNameError when the name is
// taken, or with task.ErrInvalidTask; the registry is unchanged on error.
func (s *Scheduler) AddTask(t task.Task) error {
	s.fmu.Lock()
	err := s.reg.Add(t)
	if err == nil {
		delete(s.streak, t.Name())
		delete(s.warn, t.Name())
	}
	s.fmu.Unlock()
	if err != nil {
		return err
	}
	s.log.Debug("task added",
		logx.String("task", t.Name()),
		logx.String("priority", t.Priority().String()),
		logx.Duration("interval", t.Interval()),
	)
	return nil
}

// RemoveTask unregisters name. Absent names are a no-op.
// A run of name dispatched from the current cycle's snapshot still happens.
func (s *Scheduler) RemoveTask(name string) {
	if !s.reg.Remove(name) {
		return
	}
	s.fmu.Lock()
	delete(s.streak, name)
	delete(s.warn, name)
	s.fmu.Unlock()
	s.log.Debug("task removed", logx.String("task", name))
}

// ListTasks returns the registered tasks in insertion order. Modifying the
// returned slice does not affect the scheduler.
func (s *Scheduler) ListTasks() []task.Task {
	return s.reg.Snapshot()
}

// Task looks up a registered task by name.
func (s *Scheduler) Task(name string) (task.Task, bool) {
	return s.reg.Get(name)
}

func (s *Scheduler) PollInterval() time.Duration { return s.pollInterval.Load() }

// SetPollInterval changes the wait used from the next cycle on.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	s.pollInterval.Store(d)
}

func (s *Scheduler) SetFailureLogEvery(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.failureLogEvery.Store(d)
}

func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) Stats() Stats {
	return Stats{
		Running:      s.running.Load(),
		Tasks:        s.reg.Len(),
		PollInterval: s.PollInterval(),
		Cycles:       s.cycles.Load(),
		Executions:   s.executions.Load(),
		Failures:     s.failures.Load(),
		Panics:       s.panics.Load(),
	}
}

// Snapshot describes every registered task as of now.
func (s *Scheduler) Snapshot() []TaskInfo {
	now := s.clock.Now()
	tasks := s.reg.Snapshot()

	s.fmu.Lock()
	streaks := make(map[string]int, len(s.streak))
	for k, v := range s.streak {
		streaks[k] = v
	}
	s.fmu.Unlock()

	out := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskInfo{
			Name:                t.Name(),
			Priority:            t.Priority(),
			Interval:            t.Interval(),
			LastRun:             t.LastRun(),
			NextDue:             task.NextDue(t),
			Due:                 task.IsDue(t, now),
			ConsecutiveFailures: streaks[t.Name()],
		})
	}
	return out
}

// registered reports whether t is the instance currently registered under its
// name. Callers hold fmu.
func (s *Scheduler) registered(t task.Task) bool {
	cur, ok := s.reg.Get(t.Name())
	return ok && cur == t
}
