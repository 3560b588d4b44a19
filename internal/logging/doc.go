// Package logging assembles structured slog loggers and formatting helpers used
// across lecturebook.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with job IDs, item indexes, stages, and correlation IDs. The
// package also provides a no-op logger for tests and a tee handler the job
// supervisor uses to mirror each job's records into its own log file.
package logging
