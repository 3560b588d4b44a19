package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/chunker"
	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
	"lecturebook/internal/stage"
	"lecturebook/internal/verify"
)

func newChunkCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chunk <transcript.json | job-id item>",
		Short: "Preview how a transcript is split for note writing",
		Long: "Chunk loads a transcript from a file or from a job's checkpoint (items are\n" +
			"numbered from 1) and prints the chunk plan. Only pattern-matched references\n" +
			"are used to place boundaries.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			transcript, err := loadTranscript(cmd, ctx, args)
			if err != nil {
				return err
			}

			identifier := &verify.Identifier{Logger: logging.NewNop()}
			set, err := identifier.Identify(cmd.Context(), transcript.FullText, transcript.SegmentTexts())
			if err != nil {
				return err
			}
			bounds, weights := chunker.FromConfig(cfg.Chunking)
			chunks := chunker.Split(transcript.Segments, set.Citations(), nil, bounds, weights)
			plan := chunker.Summarize(chunks, bounds)
			if asJSON {
				return writeJSON(cmd, plan)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPlan(plan))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func loadTranscript(cmd *cobra.Command, ctx *commandContext, args []string) (*contracts.TranscriptOutput, error) {
	if len(args) == 1 {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		payload, err := contracts.Decode(stage.Transcribe, raw)
		if err != nil {
			return nil, err
		}
		return payload.(*contracts.TranscriptOutput), nil
	}

	item, err := strconv.Atoi(args[1])
	if err != nil || item < 1 {
		return nil, fmt.Errorf("invalid item number %q", args[1])
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.cliLogger()
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.Open(cfg.Paths.CheckpointDir, logger)
	if err != nil {
		return nil, err
	}
	payload, err := store.Get(cmd.Context(), checkpoint.ItemKey(args[0], item-1, stage.Transcribe))
	if err != nil {
		return nil, fmt.Errorf("job %s item %d has no transcript: %w", args[0], item, err)
	}
	transcript, ok := payload.(*contracts.TranscriptOutput)
	if !ok {
		return nil, fmt.Errorf("unexpected checkpoint payload %T", payload)
	}
	return transcript, nil
}

func renderPlan(plan chunker.Plan) string {
	var b strings.Builder
	mode := "single pass"
	if plan.Chunked {
		mode = fmt.Sprintf("%d chunks", len(plan.Entries))
	}
	fmt.Fprintf(&b, "Transcript size: %d (%s; chunk size %d-%d)\n", plan.TotalSize, mode, plan.Bounds.MinSize, plan.Bounds.MaxSize)
	rows := make([][]string, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Index + 1),
			fmt.Sprintf("%d-%d", e.StartSegment, e.EndSegment),
			fmt.Sprintf("%s-%s", formatOffset(e.Start), formatOffset(e.End)),
			strconv.Itoa(e.Size),
			strconv.Itoa(e.Citations),
			strings.Join(e.Themes, ", "),
		})
	}
	b.WriteString(renderTable(
		[]string{"#", "Segments", "Time", "Size", "Refs", "Themes"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		withFooter("", "", "Total", strconv.Itoa(plan.TotalSize)),
	))
	b.WriteString("\n")
	return b.String()
}

func formatOffset(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
