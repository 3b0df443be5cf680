package app

import (
	"errors"
	"fmt"
	"slices"

	"taskloop/internal/config"
	"taskloop/internal/task"
	"taskloop/internal/task/scheduler"
)

// ReconcileResult lists what Reconcile did, by task name.
type ReconcileResult struct {
	Added    []string
	Removed  []string
	Replaced []string
	Kept     []string
}

// taskSet tracks which config definition each registered task came from.
type taskSet struct {
	sched  *scheduler.Scheduler
	build  func(config.TaskSpec) task.Task
	hashes map[string]uint64
}

func newTaskSet(s *scheduler.Scheduler, build func(config.TaskSpec) task.Task) *taskSet {
	return &taskSet{sched: s, build: build, hashes: map[string]uint64{}}
}

// Reconcile makes the registered tasks match specs without stopping the loop.
//
// Unchanged definitions keep their task (and lastRun). Changed ones are
// removed and re-added, so they are due immediately and move to the end of
// the tie-break order. Tasks absent from specs are removed.
func (ts *taskSet) Reconcile(specs []config.TaskSpec) (ReconcileResult, error) {
	var res ReconcileResult

	want := make(map[string]struct{}, len(specs))
	for _, sp := range specs {
		want[sp.Name] = struct{}{}
	}
	for name := range ts.hashes {
		if _, ok := want[name]; !ok {
			ts.sched.RemoveTask(name)
			delete(ts.hashes, name)
			res.Removed = append(res.Removed, name)
		}
	}
	slices.Sort(res.Removed)

	var errs []error
	for _, sp := range specs {
		h, known := ts.hashes[sp.Name]
		switch {
		case known && h == sp.Hash:
			res.Kept = append(res.Kept, sp.Name)
			continue
		case known:
			ts.sched.RemoveTask(sp.Name)
			delete(ts.hashes, sp.Name)
		}
		if err := ts.sched.AddTask(ts.build(sp)); err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w", sp.Name, err))
			continue
		}
		ts.hashes[sp.Name] = sp.Hash
		if known {
			res.Replaced = append(res.Replaced, sp.Name)
		} else {
			res.Added = append(res.Added, sp.Name)
		}
	}
	return res, errors.Join(errs...)
}
