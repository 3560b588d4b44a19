package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lecturebook/internal/contracts"
	"lecturebook/internal/jobs"
	"lecturebook/internal/pipeline"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// jobFlags are the submission flags shared by run and submit.
type jobFlags struct {
	title        string
	speaker      string
	noEnrich     bool
	noVerify     bool
	noModel      bool
	fuzzy        bool
	formats      []string
	instructions string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Book title (defaults to the first lecture title)")
	cmd.Flags().StringVar(&f.speaker, "speaker", "", "Speaker name")
	cmd.Flags().BoolVar(&f.noEnrich, "no-enrich", false, "Skip LLM notes and keep the plain transcript")
	cmd.Flags().BoolVar(&f.noVerify, "no-verify", false, "Skip reference verification")
	cmd.Flags().BoolVar(&f.noModel, "no-model-extraction", false, "Only use pattern matching to find references")
	cmd.Flags().BoolVar(&f.fuzzy, "fuzzy", false, "Match recited verses without explicit references")
	cmd.Flags().StringSliceVar(&f.formats, "format", nil, "Output formats (markdown, html)")
	cmd.Flags().StringVar(&f.instructions, "instructions", "", "Extra instructions for the note writer")
}

func (f *jobFlags) request(ctx *commandContext, sources []string) jobs.SubmitRequest {
	opts := pipeline.DefaultOptions()
	if cfg := ctx.configValue(); cfg != nil {
		opts = pipeline.OptionsFromConfig(cfg)
	}
	opts.Enrich = !f.noEnrich
	opts.Verify = !f.noVerify
	if f.noModel {
		opts.ModelExtraction = false
	}
	if f.fuzzy {
		opts.FuzzyMatching = true
	}
	opts.RenderFormats = f.formats
	opts.Instructions = strings.TrimSpace(f.instructions)

	items := make([]contracts.SourceItem, 0, len(sources))
	for _, source := range sources {
		items = append(items, contracts.SourceItem{Source: source})
	}
	return jobs.SubmitRequest{Items: items, Title: f.title, Speaker: f.speaker, Options: opts}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <source>...",
		Short: "Process lectures into a book and wait for the result",
		Long: "Run downloads, transcribes, enriches, validates, compiles, and renders the given sources.\n" +
			"Sources may be video site URLs, direct audio links, or local files.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request(ctx, args)
			return ctx.runForeground(cmd, func(c context.Context, sup *jobs.Supervisor) (string, error) {
				return sup.Submit(c, req)
			}, foregroundOptions{needsLLM: req.Options.Enrich || req.Options.ModelExtraction, wait: true, json: asJSON})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final status as JSON")
	return cmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <source>...",
		Short: "Queue a job for the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request(ctx, args)
			return ctx.withSupervisor(func(sup *jobs.Supervisor) error {
				id, err := sup.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]string{"job_id": id, "status": string(jobs.StatusQueued)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued\n", id)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job id as JSON")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show a job, or job counts by status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return printStats(cmd, ctx, asJSON)
			}
			return ctx.withSupervisor(func(sup *jobs.Supervisor) error {
				snapshot, err := sup.Status(cmd.Context(), args[0])
				if err != nil {
					return describeJobError(err)
				}
				if asJSON {
					return writeJSON(cmd, snapshotView(snapshot))
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSnapshot(snapshot))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printStats(cmd *cobra.Command, ctx *commandContext, asJSON bool) error {
	return ctx.withStore(func(store *jobs.Store) error {
		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd, stats)
		}
		rows := buildStatsRows(stats)
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
		return nil
	})
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobs.Status, 0, len(statusFilter))
			for _, value := range statusFilter {
				status, ok := jobs.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withSupervisor(func(sup *jobs.Supervisor) error {
				list, err := sup.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]jobView, 0, len(list))
					for _, job := range list {
						views = append(views, newJobView(job))
					}
					return writeJSON(cmd, views)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Items", "Progress", "Created"},
					buildJobListRows(list),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilter, "status", "s", nil, "Filter by status (queued, running, completed, failed, cancelled)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSupervisor(func(sup *jobs.Supervisor) error {
				if err := sup.Cancel(cmd.Context(), args[0]); err != nil {
					return describeJobError(err)
				}
				job, err := sup.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job.Job.Status == jobs.StatusCancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested; job %s stops at its next stage boundary\n", args[0])
				}
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var fromFlag string
	var queueOnly bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Retry a failed or cancelled job from its checkpoints",
		Long: "Retry creates a new job that reuses the checkpoints of the original.\n" +
			"Without --from the resume stage is the earliest stage any item still needs.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from *stage.Stage
			if strings.TrimSpace(fromFlag) != "" {
				s, err := stage.Parse(fromFlag)
				if err != nil {
					return err
				}
				from = &s
			}
			submit := func(c context.Context, sup *jobs.Supervisor) (string, error) {
				id, err := sup.Retry(c, args[0], from)
				if err != nil {
					return "", describeJobError(err)
				}
				return id, nil
			}
			if queueOnly {
				return ctx.withSupervisor(func(sup *jobs.Supervisor) error {
					id, err := submit(cmd.Context(), sup)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued as a retry of %s\n", id, args[0])
					return nil
				})
			}
			return ctx.runForeground(cmd, submit, foregroundOptions{wait: true, json: asJSON})
		},
	}
	cmd.Flags().StringVar(&fromFlag, "from", "", "Stage to resume from (download, transcribe, enrich, validate, compile, render)")
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "Queue the retry for the server instead of running it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final status as JSON")
	return cmd
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <job-id>...",
		Short: "Delete finished jobs and their checkpoints",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSupervisor(func(sup *jobs.Supervisor) error {
				var errs []error
				for _, id := range args {
					if err := sup.Purge(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, describeJobError(err)))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s purged\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}

// describeJobError appends the recovery hint for failures a user can act on.
func describeJobError(err error) error {
	if err == nil || errors.Is(err, services.ErrNotFound) {
		return err
	}
	details := services.Details(err)
	if details.Hint == "" || details.Code == services.CauseInternal {
		return err
	}
	return fmt.Errorf("%w (%s)", err, details.Hint)
}
