package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskloop/internal/eventbus"
	"taskloop/internal/task"
	logx "taskloop/pkg/logx"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// At moves the clock to t0+d.
func (c *fakeClock) At(d time.Duration) {
	c.mu.Lock()
	c.now = t0.Add(d)
	c.mu.Unlock()
}

// runLog records task executions in order.
type runLog struct {
	mu    sync.Mutex
	names []string
}

func (r *runLog) fn(name string, err error) task.Func {
	return func(context.Context) error {
		r.mu.Lock()
		r.names = append(r.names, name)
		r.mu.Unlock()
		return err
	}
}

// take returns and clears the recorded names.
func (r *runLog) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.names
	r.names = nil
	return out
}

func TestCycle_RunsDueTasksByPriority(t *testing.T) {
	clk := newFakeClock()
	s := New(WithClock(clk))
	var rl runLog

	require.NoError(t, s.AddTask(task.New("low", time.Second, rl.fn("low", nil), task.WithPriority(task.Low))))
	require.NoError(t, s.AddTask(task.New("high", time.Second, rl.fn("high", nil), task.WithPriority(task.High))))
	require.NoError(t, s.AddTask(task.New("normal", time.Second, rl.fn("normal", nil))))

	rep := s.runCycle(context.Background())
	assert.Equal(t, []string{"high", "normal", "low"}, rl.take())
	assert.Equal(t, 3, rep.executed)
	assert.Zero(t, rep.failed)
}

func TestCycle_EqualPriorityKeepsInsertionOrder(t *testing.T) {
	s := New(WithClock(newFakeClock()))
	var rl runLog

	for _, name := range []string{"x", "y", "z"} {
		require.NoError(t, s.AddTask(task.New(name, time.Second, rl.fn(name, nil))))
	}
	s.runCycle(context.Background())
	assert.Equal(t, []string{"x", "y", "z"}, rl.take())
}

func TestCycle_FailedTaskStaysDue(t *testing.T) {
	clk := newFakeClock()
	var failures []error
	s := New(WithClock(clk), WithFailureHandler(func(_ task.Task, err error) {
		failures = append(failures, err)
	}))
	boom := errors.New("boom")
	var rl runLog
	ft := task.New("flaky", time.Hour, rl.fn("flaky", boom))
	require.NoError(t, s.AddTask(ft))

	for i := range 3 {
		clk.At(time.Duration(i) * time.Second)
		rep := s.runCycle(context.Background())
		assert.Equal(t, 1, rep.failed)
	}

	assert.Equal(t, []string{"flaky", "flaky", "flaky"}, rl.take())
	assert.True(t, ft.LastRun().IsZero(), "failure must not advance lastRun")
	require.Len(t, failures, 3)

	var terr *TaskError
	require.ErrorAs(t, failures[0], &terr)
	assert.Equal(t, "flaky", terr.Task)
	assert.NotEmpty(t, terr.RunID)
	assert.ErrorIs(t, failures[0], boom)

	info := s.Snapshot()
	require.Len(t, info, 1)
	assert.Equal(t, 3, info[0].ConsecutiveFailures)
	assert.True(t, info[0].Due)
	assert.EqualValues(t, 3, s.Stats().Failures)
}

func TestCycle_SuccessWaitsForInterval(t *testing.T) {
	clk := newFakeClock()
	s := New(WithClock(clk))
	var rl runLog
	ft := task.New("tick", 2*time.Second, rl.fn("tick", nil))
	require.NoError(t, s.AddTask(ft))

	s.runCycle(context.Background())
	assert.Equal(t, t0, ft.LastRun())

	clk.At(time.Second)
	s.runCycle(context.Background())
	clk.At(2 * time.Second)
	s.runCycle(context.Background())

	assert.Equal(t, []string{"tick", "tick"}, rl.take())
	assert.Equal(t, t0.Add(2*time.Second), ft.LastRun())
}

func TestCycle_ZeroIntervalRunsEveryCycle(t *testing.T) {
	s := New(WithClock(newFakeClock()))
	var rl runLog
	require.NoError(t, s.AddTask(task.New("hot", 0, rl.fn("hot", nil))))

	for range 3 {
		s.runCycle(context.Background())
	}
	assert.Len(t, rl.take(), 3)
}

func TestCycle_SimulatedTimeline(t *testing.T) {
	clk := newFakeClock()
	s := New(WithClock(clk))
	var rl runLog

	require.NoError(t, s.AddTask(task.New("a", 2*time.Second, rl.fn("a", nil), task.WithPriority(task.High))))
	require.NoError(t, s.AddTask(task.New("b", 3*time.Second, rl.fn("b", nil))))
	require.NoError(t, s.AddTask(task.New("c", 4*time.Second, rl.fn("c", nil), task.WithPriority(task.Low))))

	steps := []struct {
		at   time.Duration
		want []string
	}{
		{0, []string{"a", "b", "c"}},
		{2 * time.Second, []string{"a"}},
		{3 * time.Second, []string{"b"}},
		{4 * time.Second, []string{"a", "c"}},
	}
	for _, st := range steps {
		clk.At(st.at)
		s.runCycle(context.Background())
		assert.Equal(t, st.want, rl.take(), "t=%s", st.at)
	}
}

func TestCycle_RemovedAfterSnapshotStillRuns(t *testing.T) {
	clk := newFakeClock()
	s := New(WithClock(clk))
	var rl runLog

	remover := task.New("remover", 0, func(ctx context.Context) error {
		s.RemoveTask("victim")
		return rl.fn("remover", nil)(ctx)
	}, task.WithPriority(task.High))
	require.NoError(t, s.AddTask(remover))
	require.NoError(t, s.AddTask(task.New("victim", 0, rl.fn("victim", nil), task.WithPriority(task.Low))))

	s.runCycle(context.Background())
	assert.Equal(t, []string{"remover", "victim"}, rl.take())

	s.runCycle(context.Background())
	assert.Equal(t, []string{"remover"}, rl.take())

	_, ok := s.Task("victim")
	assert.False(t, ok)
}

func TestExecute_PanicIsReportedAsFailure(t *testing.T) {
	var got error
	s := New(WithClock(newFakeClock()), WithFailureHandler(func(_ task.Task, err error) { got = err }))
	var rl runLog

	require.NoError(t, s.AddTask(task.New("bad", time.Second, func(context.Context) error {
		panic("kaboom")
	}, task.WithPriority(task.High))))
	require.NoError(t, s.AddTask(task.New("good", time.Second, rl.fn("good", nil))))

	rep := s.runCycle(context.Background())
	assert.Equal(t, 2, rep.executed)
	assert.Equal(t, 1, rep.failed)
	assert.Equal(t, []string{"good"}, rl.take(), "loop continues after a panic")

	var terr *TaskError
	require.ErrorAs(t, got, &terr)
	assert.True(t, terr.Panicked)
	assert.Contains(t, terr.Error(), "kaboom")

	st := s.Stats()
	assert.EqualValues(t, 1, st.Panics)
	assert.EqualValues(t, 1, st.Failures)
	assert.EqualValues(t, 2, st.Executions)
}

func TestExecute_TimeoutIsFailure(t *testing.T) {
	var got error
	s := New(WithFailureHandler(func(_ task.Task, err error) { got = err }))
	slow := task.New("slow", time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, task.WithTimeout(5*time.Millisecond))
	require.NoError(t, s.AddTask(slow))

	rep := s.runCycle(context.Background())
	assert.Equal(t, 1, rep.failed)
	assert.ErrorIs(t, got, context.DeadlineExceeded)
	assert.True(t, slow.LastRun().IsZero())
}

func TestExecute_FailureHandlerPanicIsContained(t *testing.T) {
	s := New(WithClock(newFakeClock()), WithFailureHandler(func(task.Task, error) { panic("handler") }))
	require.NoError(t, s.AddTask(task.New("f", time.Second, func(context.Context) error {
		return errors.New("nope")
	})))

	assert.NotPanics(t, func() { s.runCycle(context.Background()) })
}

func TestExecute_FailureWarningsAreThrottled(t *testing.T) {
	clk := newFakeClock()
	var buf bytes.Buffer
	s := New(
		WithClock(clk),
		WithLogger(logx.NewWriter(&buf, "warn")),
		WithFailureLogEvery(10*time.Second),
	)
	require.NoError(t, s.AddTask(task.New("flaky", time.Hour, func(context.Context) error {
		return errors.New("down")
	})))

	for _, at := range []time.Duration{0, time.Second, 2 * time.Second, 11 * time.Second} {
		clk.At(at)
		s.runCycle(context.Background())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"task failed"`)
	assert.NotContains(t, lines[0], `"suppressed"`)
	assert.Contains(t, lines[1], `"suppressed":2`)
	assert.Contains(t, lines[1], `"consecutive":4`)
	assert.EqualValues(t, 4, s.Stats().Failures, "throttling only affects logs")
}

func TestExecute_FailureWarningsUnthrottledByDefault(t *testing.T) {
	var buf bytes.Buffer
	s := New(WithClock(newFakeClock()), WithLogger(logx.NewWriter(&buf, "warn")))
	require.NoError(t, s.AddTask(task.New("flaky", time.Hour, func(context.Context) error {
		return errors.New("down")
	})))

	for range 3 {
		s.runCycle(context.Background())
	}
	assert.Equal(t, 3, strings.Count(buf.String(), `"message":"task failed"`))
}

func TestCycle_PublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(WithClock(newFakeClock()), WithBus(bus))
	require.NoError(t, s.AddTask(task.New("ok", time.Second, nil, task.WithPriority(task.High))))
	require.NoError(t, s.AddTask(task.New("bad", time.Second, func(context.Context) error {
		return errors.New("x")
	})))

	s.runCycle(context.Background())

	var types []string
	var failed eventbus.TaskEvent
	for range 5 {
		ev := <-ch
		types = append(types, ev.Type)
		if ev.Type == eventbus.TaskFailed {
			failed = ev.Data.(eventbus.TaskEvent)
		}
	}
	assert.Equal(t, []string{
		eventbus.TaskStarted, eventbus.TaskSucceeded,
		eventbus.TaskStarted, eventbus.TaskFailed,
		eventbus.SchedulerCycle,
	}, types)
	assert.Equal(t, "bad", failed.Name)
	assert.Equal(t, "normal", failed.Priority)
	assert.Equal(t, "x", failed.Error)
	assert.NotEmpty(t, failed.RunID)
}

func TestSnapshot_ReportsNextDue(t *testing.T) {
	clk := newFakeClock()
	s := New(WithClock(clk))
	require.NoError(t, s.AddTask(task.New("a", 5*time.Second, nil)))
	require.NoError(t, s.AddTask(task.New("b", time.Second, func(context.Context) error {
		return errors.New("no")
	}, task.WithPriority(task.Low))))

	s.runCycle(context.Background())
	clk.At(time.Second)

	info := s.Snapshot()
	require.Len(t, info, 2)

	assert.Equal(t, "a", info[0].Name)
	assert.Equal(t, t0, info[0].LastRun)
	assert.Equal(t, t0.Add(5*time.Second), info[0].NextDue)
	assert.False(t, info[0].Due)
	assert.Zero(t, info[0].ConsecutiveFailures)

	assert.Equal(t, "b", info[1].Name)
	assert.Equal(t, task.Low, info[1].Priority)
	assert.True(t, info[1].NextDue.IsZero())
	assert.True(t, info[1].Due)
	assert.Equal(t, 1, info[1].ConsecutiveFailures)
}

func TestRemoveTask_ClearsFailureState(t *testing.T) {
	s := New(WithClock(newFakeClock()))
	fail := func(context.Context) error { return errors.New("no") }
	require.NoError(t, s.AddTask(task.New("f", time.Second, fail)))
	s.runCycle(context.Background())

	s.RemoveTask("f")
	s.RemoveTask("f")
	require.NoError(t, s.AddTask(task.New("f", time.Second, fail)))

	info := s.Snapshot()
	require.Len(t, info, 1)
	assert.Zero(t, info[0].ConsecutiveFailures)
}

func TestRemoveTask_MidCycleFailureLeavesNoState(t *testing.T) {
	s := New(WithClock(newFakeClock()), WithFailureLogEvery(time.Hour))
	fail := func(context.Context) error { return errors.New("no") }

	require.NoError(t, s.AddTask(task.New("remover", time.Second, func(context.Context) error {
		s.RemoveTask("victim")
		return nil
	}, task.WithPriority(task.High))))
	require.NoError(t, s.AddTask(task.New("victim", time.Second, fail)))

	rep := s.runCycle(context.Background())
	assert.Equal(t, 2, rep.executed)
	assert.Equal(t, 1, rep.failed)

	require.NoError(t, s.AddTask(task.New("victim", time.Second, fail)))
	for _, info := range s.Snapshot() {
		assert.Zero(t, info.ConsecutiveFailures, info.Name)
	}

	s.fmu.Lock()
	defer s.fmu.Unlock()
	assert.Empty(t, s.streak)
	assert.Empty(t, s.warn)
}

func TestExecute_ReplacedTaskDoesNotResetNewStreak(t *testing.T) {
	s := New(WithClock(newFakeClock()))
	fail := func(context.Context) error { return errors.New("no") }

	old := task.New("t", 0, fail)
	require.NoError(t, s.AddTask(old))
	s.RemoveTask("t")
	fresh := task.New("t", 0, fail)
	require.NoError(t, s.AddTask(fresh))
	s.runCycle(context.Background())

	// A late success from the old instance must not touch the fresh one.
	staleOK := task.New("t", 0, nil)
	require.Error(t, s.execute(context.Background(), old))
	require.NoError(t, s.execute(context.Background(), staleOK))

	info := s.Snapshot()
	require.Len(t, info, 1)
	assert.Equal(t, 1, info[0].ConsecutiveFailures)
}

func TestAddTask_RejectsDuplicatesAndInvalid(t *testing.T) {
	s := New()
	require.NoError(t, s.AddTask(task.New("a", time.Second, nil)))

	err := s.AddTask(task.New("a", time.Minute, nil))
	assert.ErrorIs(t, err, task.ErrDuplicateName)

	err = s.AddTask(task.New("", time.Second, nil))
	assert.ErrorIs(t, err, task.ErrInvalidTask)

	require.Len(t, s.ListTasks(), 1)
	assert.Equal(t, time.Second, s.ListTasks()[0].Interval())
}

func TestSetPollInterval_DefaultsNonPositive(t *testing.T) {
	s := New(WithPollInterval(-1))
	assert.Equal(t, DefaultPollInterval, s.PollInterval())

	s.SetPollInterval(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, s.Stats().PollInterval)
}
