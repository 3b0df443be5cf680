package config

import (
	"sort"
	"strings"

	logx "taskloop/pkg/logx"
)

// TaskChanges lists task names by how their definition changed.
type TaskChanges struct {
	Added   []string
	Removed []string
	Changed []string
}

func (tc TaskChanges) Empty() bool {
	return len(tc.Added) == 0 && len(tc.Removed) == 0 && len(tc.Changed) == 0
}

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging and (3) the task-level changes.
// Disabled tasks count as absent.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, TaskChanges) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.PollInterval) != strings.TrimSpace(newCfg.Scheduler.PollInterval) ||
		strings.TrimSpace(oldCfg.Scheduler.FailureLogEvery) != strings.TrimSpace(newCfg.Scheduler.FailureLogEvery) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.String("scheduler.failure_log_every", strings.TrimSpace(newCfg.Scheduler.FailureLogEvery)),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Int("storage.max_runs", nS.MaxRuns),
		)
	}

	tc := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if !tc.Empty() {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Strs("tasks.added", tc.Added),
			logx.Strs("tasks.removed", tc.Removed),
			logx.Strs("tasks.changed", tc.Changed),
		)
	}

	sort.Strings(changed)
	return changed, attrs, tc
}

func taskHashes(tasks []TaskConfig) map[string]uint64 {
	m := make(map[string]uint64, len(tasks))
	for _, t := range tasks {
		if t.Disabled {
			continue
		}
		m[strings.TrimSpace(t.Name)] = t.Hash()
	}
	return m
}

func diffTasks(oldT, newT []TaskConfig) TaskChanges {
	oldM := taskHashes(oldT)
	newM := taskHashes(newT)

	var tc TaskChanges
	for name, nh := range newM {
		oh, ok := oldM[name]
		switch {
		case !ok:
			tc.Added = append(tc.Added, name)
		case oh != nh:
			tc.Changed = append(tc.Changed, name)
		}
	}
	for name := range oldM {
		if _, ok := newM[name]; !ok {
			tc.Removed = append(tc.Removed, name)
		}
	}
	sort.Strings(tc.Added)
	sort.Strings(tc.Removed)
	sort.Strings(tc.Changed)
	return tc
}
