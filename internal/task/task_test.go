package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{in: "", want: Normal},
		{in: "low", want: Low},
		{in: " Normal ", want: Normal},
		{in: "HIGH", want: High},
		{in: "urgent", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, Low, Normal)
	assert.Less(t, Normal, High)
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "priority(7)", Priority(7).String())
	assert.False(t, Priority(-1).Valid())
}

func TestNewTaskNeverRunIsDue(t *testing.T) {
	tk := New("report", time.Hour, nil)

	assert.True(t, tk.LastRun().IsZero(), "new task must start in the never-run state")
	assert.Equal(t, Normal, tk.Priority())
	assert.True(t, IsDue(tk, time.Now()))
	assert.True(t, NextDue(tk).IsZero())
}

func TestIsDueAfterMarkRun(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := New("sync", 2*time.Second, nil, WithPriority(High))
	tk.MarkRun(base)

	assert.False(t, IsDue(tk, base.Add(1999*time.Millisecond)))
	assert.True(t, IsDue(tk, base.Add(2*time.Second)), "elapsed == interval is due")
	assert.True(t, IsDue(tk, base.Add(3*time.Second)))
	assert.Equal(t, base.Add(2*time.Second), NextDue(tk))
}

func TestZeroIntervalAlwaysDue(t *testing.T) {
	now := time.Now()
	tk := New("spin", 0, nil)
	tk.MarkRun(now)
	assert.True(t, IsDue(tk, now))
}

func TestExecuteTimeout(t *testing.T) {
	tk := New("slow", time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond))

	err := tk.Execute(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 10*time.Millisecond, tk.Timeout())
}

func TestExecutePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	tk := New("bad", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, tk.Execute(context.Background()), boom)

	noop := New("noop", time.Second, nil)
	require.NoError(t, noop.Execute(context.Background()))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		task Task
		ok   bool
	}{
		{name: "nil", task: nil},
		{name: "empty name", task: New("  ", time.Second, nil)},
		{name: "negative interval", task: New("neg", -time.Second, nil)},
		{name: "bad priority", task: New("prio", time.Second, nil, WithPriority(Priority(9)))},
		{name: "valid", task: New("ok", 0, nil), ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.task)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTask)
		})
	}
}

func TestDuplicateNameError(t *testing.T) {
	var err error = &DuplicateNameError{Name: "a"}
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.EqualError(t, err, `task "a" already exists`)

	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
}
