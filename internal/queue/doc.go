// Package queue persists mastering sessions and their per-disc burn jobs in
// SQLite. The store records, rather than drives, execution: the workflow
// manager owns the run and writes status here so `chevelle status` and
// post-run inspection see the same state machine the orchestrator enforces.
package queue
