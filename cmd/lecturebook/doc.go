// Package main hosts the lecturebook CLI entrypoint and command graph.
//
// Commands submit and follow jobs (run, submit, status, list, cancel, retry,
// purge), preview results (show, verify, chunk), manage the verse cache and
// configuration, check the environment (doctor), and run the long-lived
// server (serve). Jobs live in the SQLite job store, so commands work the
// same whether or not a server is running: a command that needs to execute a
// job runs it in-process unless a server holds the instance lock, in which
// case the job is queued for the server.
package main
