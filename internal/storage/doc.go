// Package storage keeps an optional history of task executions.
//
// History is write-mostly: the Recorder appends one RunRecord per finished
// execution and the daemon reads recent runs back for diagnostics. Tasks
// themselves are never loaded from storage.
package storage
