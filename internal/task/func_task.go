package task

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// Func is the work wrapped by a FuncTask.
type Func func(ctx context.Context) error

// FuncTask is the built-in Task: caller-supplied work plus scheduling metadata.
type FuncTask struct {
	name     string
	priority Priority
	interval time.Duration
	timeout  time.Duration
	fn       Func

	lastRun atomic.Time
}

type Option func(*FuncTask)

// WithPriority overrides the default Normal priority.
func WithPriority(p Priority) Option {
	return func(t *FuncTask) { t.priority = p }
}

// WithTimeout bounds each execution. A timed-out run is a failure.
// 0 disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(t *FuncTask) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// New returns a FuncTask with Normal priority that has never run.
func New(name string, interval time.Duration, fn Func, opts ...Option) *FuncTask {
	t := &FuncTask{
		name:     name,
		priority: Normal,
		interval: interval,
		fn:       fn,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *FuncTask) Name() string            { return t.name }
func (t *FuncTask) Priority() Priority      { return t.priority }
func (t *FuncTask) Interval() time.Duration { return t.interval }
func (t *FuncTask) Timeout() time.Duration  { return t.timeout }
func (t *FuncTask) LastRun() time.Time      { return t.lastRun.Load() }
func (t *FuncTask) MarkRun(at time.Time)    { t.lastRun.Store(at) }

// Execute runs the wrapped func. A nil func is a no-op success.
func (t *FuncTask) Execute(ctx context.Context) error {
	if t.fn == nil {
		return nil
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.fn(ctx)
}

var _ Task = (*FuncTask)(nil)
