package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"lecturebook/internal/verify"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the verse cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show verse cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := loadVerseCache(cmd, ctx)
			if err != nil {
				return err
			}
			stats := cache.Stats()
			if asJSON {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:     %s\n", stats.Path)
			fmt.Fprintf(out, "Entries:  %d (%d verified)\n", stats.Entries, stats.Verified)
			fmt.Fprintf(out, "Size:     %s\n", humanBytes(stats.SizeBytes))
			if len(stats.ByScripture) == 0 {
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Scripture", "Verses"},
				buildScriptureRows(stats.ByScripture),
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached verse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := loadVerseCache(cmd, ctx)
			if err != nil {
				return err
			}
			removed := cache.Stats().Entries
			if err := cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached verses from %s\n", removed, cache.Path())
			return nil
		},
	}
}

func loadVerseCache(cmd *cobra.Command, ctx *commandContext) (*verify.Cache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.cliLogger()
	if err != nil {
		return nil, err
	}
	cache := verify.NewCache(cfg.Verification.CachePath, logger)
	if err := cache.Load(cmd.Context()); err != nil {
		return nil, fmt.Errorf("load verse cache: %w", err)
	}
	return cache, nil
}

// buildScriptureRows lists scriptures in their canonical order, then any
// unknown keys alphabetically.
func buildScriptureRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, s := range verify.Scriptures() {
		if n, ok := counts[string(s)]; ok {
			rows = append(rows, []string{s.Title(), strconv.Itoa(n)})
			seen[string(s)] = true
		}
	}
	var rest []string
	for key := range counts {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		rows = append(rows, []string{key, strconv.Itoa(counts[key])})
	}
	return rows
}

func humanBytes(value int64) string {
	const unit = 1024
	if value < unit {
		return fmt.Sprintf("%d B", value)
	}
	div, exp := int64(unit), 0
	for n := value / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(value)/float64(div), "KMGTPE"[exp])
}
