// Package task defines the unit of recurring work driven by the scheduler.
//
// A Task carries its identity (name), ordering weight (priority), cadence
// (interval) and the time it last completed successfully. The scheduler is the
// only writer of LastRun; everything else treats a Task as read-only.
package task

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Priority orders due tasks within a cycle. Higher runs first.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of Low, Normal, High.
func (p Priority) Valid() bool { return p >= Low && p <= High }

// ParsePriority maps a config name to a Priority. Empty means Normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "", "normal":
		return Normal, nil
	case "high":
		return High, nil
	default:
		return Normal, fmt.Errorf("unknown priority %q (use low, normal or high)", s)
	}
}

// Task is the capability set the scheduler needs.
//
// LastRun returns the zero time until the first successful run. MarkRun is
// called by the scheduler after Execute returns nil; implementations must make
// LastRun/MarkRun safe for concurrent use.
type Task interface {
	Name() string
	Priority() Priority
	Interval() time.Duration
	LastRun() time.Time
	Execute(ctx context.Context) error
	MarkRun(at time.Time)
}

// IsDue reports whether t should run at now.
// A task that never ran is always due.
func IsDue(t Task, now time.Time) bool {
	last := t.LastRun()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= t.Interval()
}

// NextDue returns the earliest time t becomes due. For a task that never ran
// it returns the zero time (due immediately).
func NextDue(t Task) time.Time {
	last := t.LastRun()
	if last.IsZero() {
		return time.Time{}
	}
	return last.Add(t.Interval())
}

// Validate checks the invariants the registry relies on.
func Validate(t Task) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidTask)
	}
	if strings.TrimSpace(t.Name()) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTask)
	}
	if t.Interval() < 0 {
		return fmt.Errorf("%w: %s: interval must be >= 0", ErrInvalidTask, t.Name())
	}
	if !t.Priority().Valid() {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTask, t.Name(), t.Priority())
	}
	return nil
}
