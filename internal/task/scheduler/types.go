package scheduler

import (
	"errors"
	"fmt"
	"time"

	"taskloop/internal/eventbus"
	"taskloop/internal/task"
	logx "taskloop/pkg/logx"
)

// DefaultPollInterval is the wait between cycles when none is configured.
const DefaultPollInterval = 500 * time.Millisecond

var ErrRunning = errors.New("scheduler already running")

// Clock supplies the "now" used for due checks and LastRun stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FailureHandler observes failed executions. err is always a *TaskError.
// It runs on the loop goroutine, so it should return quickly.
type FailureHandler func(t task.Task, err error)

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPollInterval sets the wait between cycles. Values <= 0 keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.SetPollInterval(d) }
}

// WithFailureLogEvery limits "task failed" warnings to one per d per task.
// Suppressed warnings are counted and reported on the next logged one.
// 0 logs every failure. Events and the failure handler are never throttled.
func WithFailureLogEvery(d time.Duration) Option {
	return func(s *Scheduler) { s.SetFailureLogEvery(d) }
}

func WithFailureHandler(fn FailureHandler) Option {
	return func(s *Scheduler) { s.onFailure = fn }
}

// StopReason tags how Run ended.
type StopReason string

const StopCancelled StopReason = "cancelled"

// Result summarizes a completed Run.
type Result struct {
	Reason     StopReason
	Cycles     uint64
	Executions uint64
	Failures   uint64

	// Interrupted is set when the stop landed mid-cycle; Skipped counts the
	// due tasks of that cycle that were not started.
	Interrupted bool
	Skipped     int
}

// TaskError wraps a failed execution.
type TaskError struct {
	Task     string
	RunID    string
	Err      error
	Panicked bool
}

func (e *TaskError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("task %q panicked: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Stats are best-effort counters for diagnostics.
type Stats struct {
	Running      bool
	Tasks        int
	PollInterval time.Duration
	Cycles       uint64
	Executions   uint64
	Failures     uint64
	Panics       uint64
}

// TaskInfo is a read-only view of one registered task.
type TaskInfo struct {
	Name                string
	Priority            task.Priority
	Interval            time.Duration
	LastRun             time.Time
	NextDue             time.Time
	Due                 bool
	ConsecutiveFailures int
}
