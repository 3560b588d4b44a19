// Package jobs implements the job supervisor and its sqlite job store.
//
// A job is one request to turn a set of lecture sources into a book. The
// Store persists jobs, per-item progress, and the progress log in sqlite
// (modernc.org/sqlite, WAL mode, busy retries). The Supervisor owns the
// in-process registry of running jobs, bounds how many run at once, and maps
// each job onto one pipeline run. Jobs submitted by one process and executed
// by another coordinate through the store: cancellation of a job owned by a
// different process is a flag the owner observes at the next stage boundary.
//
// On start the Supervisor fails jobs a dead process left running with cause
// `interrupted`; their checkpoints stay usable for Retry.
package jobs
