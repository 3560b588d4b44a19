package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"lecturebook/internal/daemon"
	"lecturebook/internal/events"
	"lecturebook/internal/jobs"
	"lecturebook/internal/logging"
	"lecturebook/internal/notifications"
	"lecturebook/internal/pipeline"
)

// submitFunc records a job through sup and returns its id.
type submitFunc func(ctx context.Context, sup *jobs.Supervisor) (string, error)

type foregroundOptions struct {
	// needsLLM requires an API key before any work starts.
	needsLLM bool
	// wait follows a job queued for a running server until it finishes.
	wait bool
	json bool
}

// runForeground executes the job created by submit in this process and
// prints its outcome. When a server holds the instance lock the job is
// queued for it instead.
func (c *commandContext) runForeground(cmd *cobra.Command, submit submitFunc, opts foregroundOptions) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if opts.needsLLM {
		if err := cfg.RequireLLM(); err != nil {
			return err
		}
	}
	logger, err := c.cliLogger()
	if err != nil {
		return err
	}

	lock, err := daemon.TryLock(cfg)
	if err != nil {
		return err
	}
	if lock == nil {
		return c.queueForServer(cmd, submit, opts)
	}
	defer func() { _ = lock.Unlock() }()

	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := pipeline.NewFromConfig(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer built.Close()

	publishers := events.Fanout{newProgressPrinter(cmd.ErrOrStderr()), notifications.NewPublisher(cfg.Events)}
	if strings.TrimSpace(cfg.Events.NATSURL) != "" {
		nats, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			logging.WarnWithContext(logger, "nats unavailable; events not published", "nats_connect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.nats_url"),
			)
		} else {
			publishers = append(publishers, nats)
		}
	}
	defer publishers.Close()

	return c.withStore(func(store *jobs.Store) error {
		sup := jobs.New(store, built.Orchestrator, built.Store, logger,
			jobs.WithMaxConcurrent(cfg.Jobs.MaxConcurrent),
			jobs.WithPublisher(publishers),
			jobs.WithJobLogs(cfg.JobLogDir(), cfg.Logging.Format, jobLogLevel),
		)
		// The supervisor outlives the signal so an interrupted job can record
		// its cancellation.
		if err := sup.Start(context.WithoutCancel(cmd.Context())); err != nil {
			return err
		}
		defer sup.Stop()

		id, err := submit(signalCtx, sup)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Job %s started\n", id)

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-signalCtx.Done():
				fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted; cancelling job")
				_ = sup.Cancel(context.WithoutCancel(cmd.Context()), id)
			case <-done:
			}
		}()

		job, err := sup.Wait(context.WithoutCancel(cmd.Context()), id)
		if err != nil {
			return err
		}
		return reportFinished(cmd, sup, job, opts.json)
	})
}

func (c *commandContext) queueForServer(cmd *cobra.Command, submit submitFunc, opts foregroundOptions) error {
	return c.withSupervisor(func(sup *jobs.Supervisor) error {
		id, err := submit(cmd.Context(), sup)
		if err != nil {
			return err
		}
		if !opts.wait {
			if opts.json {
				return writeJSON(cmd, map[string]string{"job_id": id, "status": string(jobs.StatusQueued)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued for the running server\n", id)
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Job %s queued for the running server; waiting\n", id)
		job, err := sup.Wait(cmd.Context(), id)
		if err != nil {
			return err
		}
		return reportFinished(cmd, sup, job, opts.json)
	})
}

// reportFinished prints the final state of a job and turns a failed or
// cancelled job into a command error.
func reportFinished(cmd *cobra.Command, sup *jobs.Supervisor, job *jobs.Job, asJSON bool) error {
	snapshot, err := sup.Status(cmd.Context(), job.ID)
	if err != nil {
		return err
	}
	if asJSON {
		if err := writeJSON(cmd, snapshotView(snapshot)); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderSnapshot(snapshot))
	}
	switch snapshot.Job.Status {
	case jobs.StatusCompleted:
		return nil
	case jobs.StatusCancelled:
		return errors.New("job cancelled")
	default:
		return fmt.Errorf("job failed: %s", snapshot.Job.ErrorMessage)
	}
}

// progressPrinter writes sampled job progress lines.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	sampler *logging.ProgressSampler
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, sampler: logging.NewProgressSampler(5)}
}

func (p *progressPrinter) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case events.JobProgress:
		item := -1
		if ev.Item != nil {
			item = *ev.Item
		}
		if !p.sampler.ShouldLog(item, ev.Stage, ev.Percent) {
			return nil
		}
		label := ev.Message
		if ev.Item != nil {
			label = fmt.Sprintf("item %d: %s", *ev.Item+1, ev.Message)
		}
		fmt.Fprintf(p.out, "[%3.0f%%] %s\n", ev.Percent, label)
	case events.JobStarted:
		p.sampler.Reset()
	}
	return nil
}

func (p *progressPrinter) Close() error { return nil }
