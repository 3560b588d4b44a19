// Package daemon coordinates the long-running lecturebook server.
//
// It owns the flock-based single-instance lock, starts the job supervisor
// with queue polling, accepts submissions from the NATS submit subject, and
// turns audio files dropped into the inbox directory into single-item jobs.
// Pipeline work lives in the pipeline and jobs packages; the daemon only
// handles startup, intake, and shutdown.
package daemon
