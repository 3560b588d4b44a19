package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lecturebook/internal/daemonrun"
	"lecturebook/internal/jobs"
	"lecturebook/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "logs [job-id]",
		Short: "Print the server log, or the log of one job",
		Long: "Without a job id logs prints the log of the latest serve run. With one it\n" +
			"prints that job's log file, or the server log lines mentioning the job\n" +
			"when the job has no log file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := daemonrun.CurrentLogPath(cfg)
			var filter logs.Filter
			if len(args) == 1 {
				path, filter = jobLogSource(jobs.JobLogPath(cfg.JobLogDir(), args[0]), path, args[0])
			}

			out := cmd.OutOrStdout()
			chunk, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			if err := printLines(out, chunk.Lines); err != nil {
				return err
			}
			if !follow {
				if len(chunk.Lines) == 0 && lines > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log lines in %s\n", path)
				}
				return nil
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return logs.Follow(signalCtx, path, chunk.Offset, interval, filter, func(batch []string) error {
				return printLines(out, batch)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Polling interval with --follow")
	return cmd
}

// jobLogSource prefers the job's own file and falls back to filtering the
// server log.
func jobLogSource(jobLog, serverLog, jobID string) (string, logs.Filter) {
	if info, err := os.Stat(jobLog); err == nil && !info.IsDir() {
		return jobLog, nil
	}
	return serverLog, logs.JobFilter(jobID)
}

func printLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
