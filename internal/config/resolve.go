package config

import (
	"fmt"
	"strings"
	"time"

	"taskloop/internal/task"
	"taskloop/internal/task/scheduler"
	logx "taskloop/pkg/logx"
)

// TaskSpec is a TaskConfig with every field parsed.
type TaskSpec struct {
	Name     string
	Priority task.Priority
	Every    time.Duration
	Timeout  time.Duration
	Action   string
	Message  string
	Work     time.Duration
	Command  string
	Args     []string
	Hash     uint64
}

// Resolve parses t. path prefixes error messages (e.g. "tasks[2]").
func (t TaskConfig) Resolve(path string) (TaskSpec, error) {
	spec := TaskSpec{
		Name:    strings.TrimSpace(t.Name),
		Message: t.Message,
		Command: strings.TrimSpace(t.Command),
		Args:    t.Args,
		Hash:    t.Hash(),
	}
	if spec.Name == "" {
		return TaskSpec{}, fmt.Errorf("%s.name: required", path)
	}

	p, err := task.ParsePriority(t.Priority)
	if err != nil {
		return TaskSpec{}, fmt.Errorf("%s.priority: %w", path, err)
	}
	spec.Priority = p

	if spec.Every, err = ParseInterval(t.Every); err != nil {
		return TaskSpec{}, fmt.Errorf("%s.every: %w", path, err)
	}
	if spec.Timeout, err = ParseDurationField(path+".timeout", t.Timeout); err != nil {
		return TaskSpec{}, err
	}

	spec.Action = strings.ToLower(strings.TrimSpace(t.Action))
	if spec.Action == "" {
		spec.Action = ActionLog
	}
	switch spec.Action {
	case ActionLog:
		if spec.Work, err = ParseDurationField(path+".work", t.Work); err != nil {
			return TaskSpec{}, err
		}
	case ActionExec:
		if spec.Command == "" {
			return TaskSpec{}, fmt.Errorf("%s.command: required for action %q", path, ActionExec)
		}
	default:
		return TaskSpec{}, fmt.Errorf("%s.action: unknown action %q (use %q or %q)", path, t.Action, ActionLog, ActionExec)
	}
	return spec, nil
}

// ResolveTasks resolves every enabled task, keeping file order.
func (c *Config) ResolveTasks() ([]TaskSpec, error) {
	out := make([]TaskSpec, 0, len(c.Tasks))
	for i, tc := range c.Tasks {
		if tc.Disabled {
			continue
		}
		spec, err := tc.Resolve(fmt.Sprintf("tasks[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// SchedulerOptions returns the parsed poll interval and failure log window.
func (c *Config) SchedulerOptions() (poll, failureLogEvery time.Duration, err error) {
	poll, err = ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	if err != nil {
		return 0, 0, err
	}
	failureLogEvery, err = ParseDurationField("scheduler.failure_log_every", c.Scheduler.FailureLogEvery)
	if err != nil {
		return 0, 0, err
	}
	return poll, failureLogEvery, nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		JSON:    c.Logging.JSON,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
