package eventbus

import "time"

// Event types published by the scheduler.
const (
	TaskStarted      = "task.started"
	TaskSucceeded    = "task.succeeded"
	TaskFailed       = "task.failed"
	SchedulerCycle   = "scheduler.cycle"
	SchedulerStopped = "scheduler.stopped"
)

// TaskEvent is the payload of task.* events.
type TaskEvent struct {
	RunID    string        `json:"run_id"`
	Name     string        `json:"name"`
	Priority string        `json:"priority"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Panicked bool          `json:"panicked,omitempty"`
}

// CycleEvent is the payload of scheduler.cycle.
type CycleEvent struct {
	Cycle    uint64    `json:"cycle"`
	At       time.Time `json:"at"`
	Due      []string  `json:"due"`
	Executed int       `json:"executed"`
}

// StoppedEvent is the payload of scheduler.stopped.
type StoppedEvent struct {
	Reason string `json:"reason"`
	Cycles uint64 `json:"cycles"`
}
