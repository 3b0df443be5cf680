package scheduler

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"taskloop/internal/eventbus"
	"taskloop/internal/task"
	logx "taskloop/pkg/logx"
)

// Run drives cycles until ctx is cancelled. It blocks.
//
// Cancellation is a normal stop: Run returns (Result, nil) with
// Reason == StopCancelled. A second concurrent Run returns ErrRunning.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrRunning
	}
	defer s.running.Store(false)
	return s.run(ctx), nil
}

// Handle controls a loop started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	res Result
}

// Done is closed once the loop has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop requests a stop and returns immediately. The in-flight task, if any,
// finishes first; use Wait to block until then.
func (h *Handle) Stop() { h.cancel() }

// Wait blocks until the loop returns. Stopping is not an error, so the
// returned error is always nil.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res, nil
}

// Start runs the loop on its own goroutine, bound to a context derived from
// ctx. ErrRunning is reported synchronously.
func (s *Scheduler) Start(ctx context.Context) (*Handle, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		res := s.run(runCtx)
		s.running.Store(false)
		h.mu.Lock()
		h.res = res
		h.mu.Unlock()
	}()
	return h, nil
}

func (s *Scheduler) run(ctx context.Context) Result {
	var res Result
	s.log.Info("scheduler started",
		logx.Strs("tasks", s.reg.Names()),
		logx.Duration("poll_interval", s.PollInterval()),
	)

	for {
		if ctx.Err() != nil {
			break
		}
		rep := s.runCycle(ctx)
		res.Cycles++
		res.Executions += uint64(rep.executed)
		res.Failures += uint64(rep.failed)
		if rep.interrupted {
			res.Interrupted = true
			res.Skipped = rep.skipped
			break
		}
		if !s.wait(ctx) {
			break
		}
	}

	res.Reason = StopCancelled
	s.log.Info("scheduler stopped",
		logx.String("reason", string(res.Reason)),
		logx.Uint64("cycles", res.Cycles),
		logx.Uint64("executions", res.Executions),
		logx.Uint64("failures", res.Failures),
		logx.Int("skipped", res.Skipped),
	)
	s.publish(eventbus.SchedulerStopped, eventbus.StoppedEvent{
		Reason: string(res.Reason),
		Cycles: res.Cycles,
	})
	return res
}

type cycleReport struct {
	due      int
	executed int
	failed   int

	// interrupted: ctx was cancelled between tasks; skipped: due tasks not started.
	interrupted bool
	skipped     int
}

// runCycle executes one pass over the due set. It does not wait.
func (s *Scheduler) runCycle(ctx context.Context) cycleReport {
	n := s.cycles.Add(1)
	now := s.clock.Now()
	due := dueSet(s.reg.Snapshot(), now)

	rep := cycleReport{due: len(due)}
	if len(due) > 0 {
		s.log.Debug("cycle", logx.Uint64("cycle", n), logx.Int("due", len(due)))
	}

	for i, t := range due {
		if err := s.execute(ctx, t); err != nil {
			rep.failed++
		}
		rep.executed++
		if ctx.Err() != nil {
			rep.skipped = len(due) - i - 1
			rep.interrupted = rep.skipped > 0
			break
		}
	}

	names := make([]string, 0, len(due))
	for _, t := range due {
		names = append(names, t.Name())
	}
	s.publish(eventbus.SchedulerCycle, eventbus.CycleEvent{
		Cycle:    n,
		At:       now,
		Due:      names,
		Executed: rep.executed,
	})
	return rep
}

// dueSet filters tasks due at now and orders them by priority, highest first.
// The sort is stable, so equal priorities keep registry order.
func dueSet(tasks []task.Task, now time.Time) []task.Task {
	due := tasks[:0:0]
	for _, t := range tasks {
		if task.IsDue(t, now) {
			due = append(due, t)
		}
	}
	slices.SortStableFunc(due, func(a, b task.Task) int {
		return cmp.Compare(b.Priority(), a.Priority())
	})
	return due
}

// wait sleeps for the poll interval. It returns false if ctx ended first.
func (s *Scheduler) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.PollInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: data})
}
