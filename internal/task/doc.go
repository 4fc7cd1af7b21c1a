// Package task runs the worker pool that drains the job queue. Each worker
// loop pops a job id with a bounded wait, loads the record, marks it
// RUNNING, and dispatches to the pipeline registered for its kind. The
// dispatch boundary absorbs every failure, error or panic, and converts it
// into a terminal ERROR status so a misbehaving pipeline can never kill a
// worker loop.
package task
