package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lecturebook/internal/pipeline"
	"lecturebook/internal/verify"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showText bool
	cmd := &cobra.Command{
		Use:   "verify <reference>...",
		Short: "Verify scripture references against the verse source",
		Long: "Verify looks up each reference (for example \"BG 2.47\" or \"CC Madhya 22.93\")\n" +
			"in the verse cache, the fast-path server when configured, and the reference site.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger()
			if err != nil {
				return err
			}

			citations := make([]verify.Citation, 0, len(args))
			var errs []error
			for _, arg := range args {
				c, err := verify.ParseReference(arg, verify.OriginPattern)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				citations = append(citations, c)
			}
			if len(errs) > 0 {
				return errors.Join(errs...)
			}

			opener := pipeline.NewSessionOpener(cfg.Verification, logger)
			verifier := pipeline.NewVerifier(cfg.Verification, opener, logger)
			outcomes, err := verifier.BatchVerify(cmd.Context(), citations)
			if err != nil {
				return err
			}
			ordered := verify.OrderedOutcomes(citations, outcomes)
			if asJSON {
				return writeJSON(cmd, ordered)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Reference", "Result", "Source", "Attempts", "Detail"},
				buildOutcomeRows(ordered, showText),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				withMaxWidth(4, 72),
			))
			if unverified := countUnverified(ordered); unverified > 0 {
				return fmt.Errorf("%d of %d references could not be verified", unverified, len(ordered))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print outcomes as JSON")
	cmd.Flags().BoolVar(&showText, "text", false, "Show the translation instead of the verse URL")
	return cmd
}

func buildOutcomeRows(outcomes []verify.Outcome, showText bool) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		result := "Verified"
		detail := o.Error
		if !o.Verified() {
			result = formatStatusLabel(string(o.Kind))
		} else if o.Record != nil {
			detail = o.Record.URL
			if showText && o.Record.Translation != "" {
				detail = strings.Join(strings.Fields(o.Record.Translation), " ")
			}
		}
		attempts := "-"
		if o.Attempts > 0 {
			attempts = fmt.Sprintf("%d", o.Attempts)
		}
		rows = append(rows, []string{string(o.Key), result, string(o.Source), attempts, detail})
	}
	return rows
}

func countUnverified(outcomes []verify.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Verified() {
			n++
		}
	}
	return n
}
