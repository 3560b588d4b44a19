package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lecturebook/internal/pipeline"
	"lecturebook/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, tools, and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			local := preflight.RunAll(cmd.Context(), cfg)
			printSection(cmd, "Local", checkLines(local, colorize), colorize)

			results := local
			if !offline {
				opts := pipeline.OptionsFromConfig(cfg)
				llm := preflight.CheckLLM(cmd.Context(), cfg.LLM)
				// Plain transcripts need no model.
				llm.Optional = !opts.Enrich && !opts.ModelExtraction
				remote := []preflight.Result{
					llm,
					preflight.CheckVerseSite(cmd.Context(), cfg.Verification.BaseURL),
					preflight.CheckNATS(cfg.Events),
				}
				fmt.Fprintln(out)
				printSection(cmd, "Services", checkLines(remote, colorize), colorize)
				results = append(results, remote...)
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("%d required checks failed: %s", len(failed), strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that contact remote services")
	return cmd
}

func printSection(cmd *cobra.Command, title string, lines []string, colorize bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, sectionTitle(title, colorize))
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
