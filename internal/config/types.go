package config

// Config is the on-disk daemon configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Tasks     []TaskConfig    `json:"tasks"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the polling loop.
//
// Defaults (when fields are omitted/empty):
//   - poll_interval: "500ms"
//   - failure_log_every: "0s" (log every failure)
type SchedulerConfig struct {
	PollInterval    string `json:"poll_interval"`
	FailureLogEvery string `json:"failure_log_every,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./taskloop.sqlite", "max_runs": 10000 }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	MaxRuns     int    `json:"max_runs,omitempty"`
}

// TaskConfig declares one recurring task.
//
// Every accepts a Go duration ("2s"), HH:MM ("00:50") or an "every:" /
// "interval:" prefix. Action is "log" (default) or "exec".
type TaskConfig struct {
	Name     string `json:"name"`
	Priority string `json:"priority,omitempty"`
	Every    string `json:"every"`
	Timeout  string `json:"timeout,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`

	Action string `json:"action,omitempty"`

	// log
	Message string `json:"message,omitempty"`
	Work    string `json:"work,omitempty"`

	// exec
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

const (
	ActionLog  = "log"
	ActionExec = "exec"
)
