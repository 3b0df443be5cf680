// Package scheduler runs registered tasks on a fixed polling cadence.
//
// Each cycle takes a registry snapshot, selects the tasks whose interval has
// elapsed since their last successful run, orders them by priority (stable, so
// insertion order breaks ties) and executes them one at a time. Between cycles
// the loop waits for the poll interval or for its context to be canceled.
//
// Failures are reported (log, event bus, optional handler) and never advance
// LastRun, so a task that keeps failing is retried every cycle with no backoff.
// Cancellation is cooperative: it is checked before each cycle and after each
// task, and an execution already in flight always runs to completion.
package scheduler
