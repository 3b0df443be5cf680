package app

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"taskloop/internal/config"
	"taskloop/internal/task"
	logx "taskloop/pkg/logx"
)

// maxOutputInError bounds the command output quoted in an exec failure.
const maxOutputInError = 512

// BuildTask turns a resolved config entry into a schedulable task.
func BuildTask(spec config.TaskSpec, log logx.Logger) *task.FuncTask {
	log = log.With(logx.String("task", spec.Name))

	var fn task.Func
	switch spec.Action {
	case config.ActionExec:
		fn = execAction(spec, log)
	default:
		fn = logAction(spec, log)
	}
	return task.New(spec.Name, spec.Every, fn,
		task.WithPriority(spec.Priority),
		task.WithTimeout(spec.Timeout),
	)
}

// logAction logs the configured message, then simulates work for spec.Work.
func logAction(spec config.TaskSpec, log logx.Logger) task.Func {
	msg := spec.Message
	if strings.TrimSpace(msg) == "" {
		msg = "tick"
	}
	return func(ctx context.Context) error {
		log.Info(msg, logx.String("priority", spec.Priority.String()))
		if spec.Work <= 0 {
			return nil
		}
		t := time.NewTimer(spec.Work)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// execAction runs the configured command. A non-zero exit is a failure.
func execAction(spec config.TaskSpec, log logx.Logger) task.Func {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
		start := time.Now()
		out, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", spec.Command, ctx.Err())
			}
			if o := tail(out, maxOutputInError); o != "" {
				return fmt.Errorf("%s: %w: %s", spec.Command, err, o)
			}
			return fmt.Errorf("%s: %w", spec.Command, err)
		}
		log.Debug("command finished",
			logx.String("command", spec.Command),
			logx.Int("output_bytes", len(out)),
			logx.Duration("took", time.Since(start)),
		)
		return nil
	}
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
