// Package daemonrun hosts the process body of `lecturebook serve`: logger
// and log retention setup, the pid file, pipeline wiring, the optional NATS
// connection, and the daemon lifecycle bound to process signals.
package daemonrun
