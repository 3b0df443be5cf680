package storage

import (
	"context"
	"time"

	"taskloop/internal/eventbus"
	logx "taskloop/pkg/logx"
)

const recordTimeout = 2 * time.Second

// Recorder persists task.succeeded and task.failed events into a Store.
type Recorder struct {
	store Store
	log   logx.Logger
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log}
}

// Run consumes events until ctx is done or the channel closes. Events
// already buffered when ctx ends are still written.
func (r *Recorder) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			r.drain(events)
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) drain(events <-chan eventbus.Event) {
	ctx := context.Background()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	rec, ok := RecordFromEvent(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.store.AppendRun(ctx, rec); err != nil {
		r.log.Warn("run history append failed",
			logx.String("task", rec.Task),
			logx.String("run_id", rec.ID),
			logx.Err(err),
		)
	}
}

// RecordFromEvent converts a finished-task event. It reports false for any
// other event type.
func RecordFromEvent(ev eventbus.Event) (RunRecord, bool) {
	if ev.Type != eventbus.TaskSucceeded && ev.Type != eventbus.TaskFailed {
		return RunRecord{}, false
	}
	te, ok := ev.Data.(eventbus.TaskEvent)
	if !ok {
		return RunRecord{}, false
	}
	return RunRecord{
		ID:        te.RunID,
		Task:      te.Name,
		Priority:  te.Priority,
		StartedAt: te.Started,
		Duration:  te.Duration,
		OK:        ev.Type == eventbus.TaskSucceeded,
		Error:     te.Error,
		Panicked:  te.Panicked,
	}, true
}
