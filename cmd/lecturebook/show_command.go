package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/contracts"
	"lecturebook/internal/jobs"
	"lecturebook/internal/stage"
)

const showWordWrap = 100

func newShowCommand(ctx *commandContext) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <job-id|file.md>",
		Short: "Display a rendered book in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveShowPath(cmd, ctx, args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			out := cmd.OutOrStdout()
			if raw || !shouldColorize(out) || !strings.HasSuffix(strings.ToLower(path), ".md") {
				_, err := out.Write(data)
				return err
			}
			rendered, err := renderMarkdown(string(data))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the file without terminal formatting")
	return cmd
}

// resolveShowPath accepts a file path or a job id. For a job it prefers the
// rendered markdown file over the job's primary output.
func resolveShowPath(cmd *cobra.Command, ctx *commandContext, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	logger, err := ctx.cliLogger()
	if err != nil {
		return "", err
	}
	checkpoints, err := checkpoint.Open(cfg.Paths.CheckpointDir, logger)
	if err != nil {
		return "", err
	}
	payload, err := checkpoints.Get(cmd.Context(), checkpoint.JobKey(arg, stage.Render))
	if err == nil {
		if out, ok := payload.(*contracts.RenderOutput); ok {
			for _, f := range out.Files {
				if f.Format == "markdown" {
					return f.Path, nil
				}
			}
			if primary := out.Primary(); primary != "" {
				return primary, nil
			}
		}
	} else if !errors.Is(err, checkpoint.ErrMissing) {
		return "", err
	}

	var output string
	err = ctx.withStore(func(store *jobs.Store) error {
		job, err := store.Get(cmd.Context(), arg)
		if err != nil {
			return err
		}
		output = job.OutputPath
		return nil
	})
	if err != nil {
		return "", err
	}
	if output == "" {
		return "", fmt.Errorf("job %s has no rendered output", arg)
	}
	return output, nil
}

func renderMarkdown(markdown string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(showWordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("init markdown renderer: %w", err)
	}
	return renderer.Render(markdown)
}
