package task

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName = errors.New("task name already registered")
	ErrInvalidTask   = errors.New("invalid task")
)

// DuplicateNameError is returned when a task name collides with a registered one.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("task %q already exists", e.Name)
}

// Is lets errors.Is(err, ErrDuplicateName) match.
func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }
