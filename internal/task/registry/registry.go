// Package registry holds the set of scheduled tasks.
//
// Names are unique and insertion order is preserved; the scheduler uses that
// order to break priority ties. Every operation goes through one mutex and
// holds it only for the slice/map work, never while a task executes.
package registry

import (
	"slices"
	"sync"

	"taskloop/internal/task"
)

type Registry struct {
	mu    sync.Mutex
	order []task.Task
	names map[string]struct{}
}

func New() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Add appends t to the iteration order.
// It returns *task.DuplicateNameError if the name is taken; the registry is
// left untouched on any error.
func (r *Registry) Add(t task.Task) error {
	if err := task.Validate(t); err != nil {
		return err
	}
	name := t.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return &task.DuplicateNameError{Name: name}
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, t)
	return nil
}

// Remove deletes the task named name. Absent names are a no-op.
// An execution already dispatched from an earlier snapshot still completes.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; !ok {
		return false
	}
	delete(r.names, name)
	r.order = slices.DeleteFunc(r.order, func(t task.Task) bool { return t.Name() == name })
	return true
}

// Snapshot returns the registered tasks in insertion order.
// The slice is a fresh copy; later Add/Remove calls do not affect it.
func (r *Registry) Snapshot() []task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func (r *Registry) Get(name string) (task.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; !ok {
		return nil, false
	}
	i := slices.IndexFunc(r.order, func(t task.Task) bool { return t.Name() == name })
	if i < 0 {
		return nil, false
	}
	return r.order[i], true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Names returns registered names in insertion order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, t.Name())
	}
	return out
}
