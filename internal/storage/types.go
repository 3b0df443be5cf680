package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxRuns caps retained history. Older runs are pruned periodically.
	// 0 keeps everything.
	MaxRuns int
}

// Store is the run-history API used by the recorder and the daemon.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to limit runs, newest first. An empty task
	// matches every task; limit <= 0 means no limit.
	RecentRuns(ctx context.Context, task string, limit int) ([]RunRecord, error)
	Close() error
}

// RunRecord is one finished execution.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID        string        `json:"id"`
	Task      string        `json:"task"`
	Priority  string        `json:"priority"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Panicked  bool          `json:"panicked,omitempty"`
}
