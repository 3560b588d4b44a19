// Package logs reads lecturebook log files for the logs command.
//
// Last returns the final lines of a file with bounded memory, ReadFrom picks
// up complete lines after an offset, and Follow polls for new lines until its
// context ends. JobFilter narrows the shared server log to one job.
package logs
