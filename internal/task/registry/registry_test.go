package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"taskloop/internal/task"
)

func newTask(name string) *task.FuncTask {
	return task.New(name, time.Second, nil)
}

func TestAddPreservesInsertionOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Add(newTask(name)))
	}
	assert.Equal(t, []string{"c", "a", "b"}, r.Names())
	assert.Equal(t, 3, r.Len())
}

func TestAddDuplicateLeavesRegistryUnchanged(t *testing.T) {
	r := New()
	first := newTask("a")
	require.NoError(t, r.Add(first))
	require.NoError(t, r.Add(newTask("b")))
	before := r.Snapshot()

	err := r.Add(task.New("a", time.Minute, nil, task.WithPriority(task.High)))
	require.ErrorIs(t, err, task.ErrDuplicateName)
	var dup *task.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)

	assert.Equal(t, before, r.Snapshot())
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestAddInvalidTask(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.Add(nil), task.ErrInvalidTask)
	require.ErrorIs(t, r.Add(newTask("")), task.ErrInvalidTask)
	assert.Zero(t, r.Len())
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(newTask("a")))
	require.NoError(t, r.Add(newTask("b")))
	before := r.Snapshot()

	assert.False(t, r.Remove("missing"))
	assert.Equal(t, before, r.Snapshot())
}

func TestRemoveKeepsRemainingOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, r.Add(newTask(name)))
	}
	assert.True(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c", "d"}, r.Names())

	_, ok := r.Get("b")
	assert.False(t, ok)

	// The name is free again and re-adding appends at the end.
	require.NoError(t, r.Add(newTask("b")))
	assert.Equal(t, []string{"a", "c", "d", "b"}, r.Names())
}

func TestSnapshotIsIndependent(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(newTask("a")))
	require.NoError(t, r.Add(newTask("b")))

	snap := r.Snapshot()
	snap[0] = newTask("intruder")
	snap = append(snap, newTask("extra"))

	require.NoError(t, r.Add(newTask("c")))
	r.Remove("a")

	assert.Equal(t, []string{"b", "c"}, r.Names())
	assert.Len(t, snap, 3, "later registry mutations must not leak into a taken snapshot")
	assert.Equal(t, "b", snap[1].Name())
}

func TestConcurrentMutation(t *testing.T) {
	r := New()
	const workers, perWorker = 8, 50

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				name := fmt.Sprintf("w%d-t%d", w, i)
				if err := r.Add(newTask(name)); err != nil {
					return err
				}
				_ = r.Snapshot()
				if i%2 == 1 {
					r.Remove(name)
				}
			}
			return nil
		})
	}
	// Every worker also races on one shared name; exactly one Add may win.
	shared := make(chan error, workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			shared <- r.Add(newTask("shared"))
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(shared)

	wins := 0
	for err := range shared {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, task.ErrDuplicateName)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers*perWorker/2+1, r.Len())
}
