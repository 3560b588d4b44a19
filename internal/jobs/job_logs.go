package jobs

import (
	"log/slog"
	"path/filepath"

	"lecturebook/internal/logging"
)

type jobLogSettings struct {
	dir    string
	format string
	level  string
}

// JobLogPath returns the per-job log file under dir.
func JobLogPath(dir, jobID string) string {
	return filepath.Join(dir, jobID+".log")
}

// jobLogger returns the root logger teed into the job's log file and a
// function closing that file. It returns nil without a log directory or when
// the file cannot be opened.
func (s *Supervisor) jobLogger(jobID string) (*slog.Logger, func()) {
	if s.jobLogs.dir == "" {
		return nil, func() {}
	}
	path := JobLogPath(s.jobLogs.dir, jobID)
	handler, closer, err := logging.NewFileHandler(path, s.jobLogs.format, s.jobLogs.level)
	if err != nil {
		logging.WarnWithContext(s.logger, "job log unavailable", "job_log_open_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
			logging.String(logging.FieldImpact, "job records go only to the main log"),
		)
		return nil, func() {}
	}
	return logging.TeeLogger(s.root, handler), func() { _ = closer.Close() }
}
