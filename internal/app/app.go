// Package app wires configuration, logging, the event bus, run history and
// the scheduler into the taskloop daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskloop/internal/config"
	"taskloop/internal/eventbus"
	"taskloop/internal/runtime/supervisor"
	"taskloop/internal/storage"
	"taskloop/internal/task"
	"taskloop/internal/task/scheduler"
	logx "taskloop/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sched *scheduler.Scheduler
	tasks *taskSet

	sup *supervisor.Supervisor

	mu     sync.Mutex
	result scheduler.Result
}

// openStore is replaced in tests.
var openStore = storage.Open

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg)
}

// newApp builds the components for cfg. Anything opened before a failure is
// closed again.
func newApp(cfgm *config.ConfigManager, cfg *config.Config) (_ *App, err error) {
	logSvc, log := logx.New(cfg.LogConfig())
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if enabled {
		if store, err = openStore(sc, log.With(logx.String("comp", "storage"))); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				_ = store.Close()
			}
		}()
		log.Info("run history enabled", logx.String("driver", sc.Driver))
	}

	poll, failEvery, err := cfg.SchedulerOptions()
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(
		scheduler.WithLogger(log.With(logx.String("comp", "scheduler"))),
		scheduler.WithBus(bus),
		scheduler.WithPollInterval(poll),
		scheduler.WithFailureLogEvery(failEvery),
	)

	taskLog := log.With(logx.String("comp", "task"))
	ts := newTaskSet(sched, func(spec config.TaskSpec) task.Task { return BuildTask(spec, taskLog) })

	specs, err := cfg.ResolveTasks()
	if err != nil {
		return nil, err
	}
	if _, err := ts.Reconcile(specs); err != nil {
		return nil, err
	}

	return &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		sched: sched,
		tasks: ts,
	}, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Result is the scheduler's summary once it has stopped.
func (a *App) Result() scheduler.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// The recorder subscribes before the loop starts so the first runs are kept.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		rec := storage.NewRecorder(a.store, a.log.With(logx.String("comp", "history")))
		a.sup.Go("history.recorder", func(c context.Context) error {
			defer unsub()
			return rec.Run(c, events)
		})
	}

	a.sup.Go("scheduler", func(c context.Context) error {
		res, err := a.sched.Run(c)
		a.mu.Lock()
		a.result = res
		a.mu.Unlock()
		return err
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, time.Minute))

	if every := watchdogInterval(); every > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return runWatchdog(c, a.log, every, a.sched.Running)
		})
	}

	sdNotify(a.log, daemon.SdNotifyReady)
	sdNotify(a.log, fmt.Sprintf("STATUS=running %d tasks", len(a.sched.ListTasks())))
	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// applyConfig applies a validated reload. The loop keeps running throughout.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, _ := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(newCfg.LogConfig())

	if poll, failEvery, err := newCfg.SchedulerOptions(); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.SetPollInterval(poll)
		a.sched.SetFailureLogEvery(failEvery)
	}

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	if specs, err := newCfg.ResolveTasks(); err != nil {
		a.log.Warn("invalid tasks config; keeping previous", logx.Err(err))
	} else {
		res, err := a.tasks.Reconcile(specs)
		if err != nil {
			a.log.Warn("task reconcile incomplete", logx.Err(err))
		}
		a.log.Debug("tasks reconciled",
			logx.Strs("added", res.Added),
			logx.Strs("removed", res.Removed),
			logx.Strs("replaced", res.Replaced),
			logx.Int("kept", len(res.Kept)),
		)
	}

	sdNotify(a.log, fmt.Sprintf("STATUS=running %d tasks", len(a.sched.ListTasks())))
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels everything and waits, bounded by ctx. The task in flight, if
// any, is allowed to finish first.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// Goroutines first: the recorder drains pending history before storage closes.
	step("supervisor", 10*time.Second, a.sup.Stop)
	a.logGoroutines()
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	res := a.Result()
	a.log.Info("stopped",
		logx.Uint64("cycles", res.Cycles),
		logx.Uint64("executions", res.Executions),
		logx.Uint64("failures", res.Failures),
		logx.Uint64("events_dropped", eventbus.Dropped(a.bus)),
	)
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// logGoroutines reports goroutines that restarted, panicked or did not exit.
func (a *App) logGoroutines() {
	if n := a.sup.Active(); n > 0 {
		a.log.Warn("goroutines still running", logx.Int64("active", n))
	}
	for _, st := range a.sup.Snapshot() {
		if st.Active == 0 && st.Restarts == 0 && st.Panics == 0 {
			continue
		}
		a.log.Warn("goroutine summary",
			logx.String("name", st.Name),
			logx.Int64("active", st.Active),
			logx.Uint64("restarts", st.Restarts),
			logx.Uint64("panics", st.Panics),
			logx.String("last_err", st.LastErr),
		)
	}
}
