package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"taskloop/internal/eventbus"
	"taskloop/internal/task"
	logx "taskloop/pkg/logx"
)

// execute runs t once and records the outcome. It returns a *TaskError on
// failure and never panics.
//
// The stop signal is detached from the context handed to Execute: a task that
// has started always runs to completion.
func (s *Scheduler) execute(ctx context.Context, t task.Task) error {
	runID := xid.New().String()
	name := t.Name()
	prio := t.Priority().String()
	started := s.clock.Now()

	s.executions.Add(1)
	s.log.Debug("task start", logx.String("task", name), logx.String("run_id", runID))
	s.publish(eventbus.TaskStarted, eventbus.TaskEvent{
		RunID: runID, Name: name, Priority: prio, Started: started,
	})

	stack, err := invoke(context.WithoutCancel(ctx), t)
	finished := s.clock.Now()
	dur := finished.Sub(started)

	if err == nil {
		t.MarkRun(finished)
		s.fmu.Lock()
		if s.registered(t) {
			delete(s.streak, name)
		}
		s.fmu.Unlock()

		s.log.Debug("task done",
			logx.String("task", name),
			logx.String("run_id", runID),
			logx.Duration("took", dur),
		)
		s.publish(eventbus.TaskSucceeded, eventbus.TaskEvent{
			RunID: runID, Name: name, Priority: prio, Started: started, Duration: dur,
		})
		return nil
	}

	panicked := stack != ""
	terr := &TaskError{Task: name, RunID: runID, Err: err, Panicked: panicked}
	s.failures.Add(1)
	if panicked {
		s.panics.Add(1)
	}

	streak, logIt, suppressed := s.noteFailure(t, finished)
	switch {
	case panicked:
		// Panics always log, with the stack.
		s.log.Error("task panicked",
			logx.String("task", name),
			logx.String("run_id", runID),
			logx.Int("consecutive", streak),
			logx.Err(err),
			logx.Stack(stack),
		)
	case logIt:
		fields := []logx.Field{
			logx.String("task", name),
			logx.String("run_id", runID),
			logx.Duration("took", dur),
			logx.Int("consecutive", streak),
			logx.Err(err),
		}
		if suppressed > 0 {
			fields = append(fields, logx.Int("suppressed", suppressed))
		}
		s.log.Warn("task failed", fields...)
	}

	s.publish(eventbus.TaskFailed, eventbus.TaskEvent{
		RunID:    runID,
		Name:     name,
		Priority: prio,
		Started:  started,
		Duration: dur,
		Error:    err.Error(),
		Panicked: panicked,
	})
	s.notifyFailure(t, terr)
	return terr
}

// invoke calls Execute, converting a panic into an error plus its stack.
func invoke(ctx context.Context, t task.Task) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
		}
	}()
	return "", t.Execute(ctx)
}

// noteFailure bumps the failure streak for t and decides whether the
// warning should be logged under the per-task rate limit. A task removed or
// replaced while it ran leaves no state behind.
func (s *Scheduler) noteFailure(t task.Task, now time.Time) (streak int, logIt bool, suppressed int) {
	every := s.failureLogEvery.Load()
	name := t.Name()

	s.fmu.Lock()
	defer s.fmu.Unlock()

	if !s.registered(t) {
		return 1, true, 0
	}
	s.streak[name]++
	streak = s.streak[name]
	if every <= 0 {
		return streak, true, 0
	}

	w := s.warn[name]
	if w == nil || w.every != every {
		w = &failureWarn{lim: rate.NewLimiter(rate.Every(every), 1), every: every}
		s.warn[name] = w
	}
	if !w.lim.AllowN(now, 1) {
		w.suppressed++
		return streak, false, 0
	}
	suppressed = w.suppressed
	w.suppressed = 0
	return streak, true, suppressed
}

func (s *Scheduler) notifyFailure(t task.Task, err *TaskError) {
	if s.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("failure handler panicked",
				logx.String("task", err.Task),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	s.onFailure(t, err)
}
