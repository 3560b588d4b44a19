package preflight

import (
	"context"
	"strings"

	"lecturebook/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes the local preflight checks: directory access and
// binary availability.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	dirs := []struct {
		name string
		path string
	}{
		{"Data directory", cfg.Paths.DataDir},
		{"Checkpoint directory", cfg.Paths.CheckpointDir},
		{"Output directory", cfg.Paths.OutputDir},
		{"Work directory", cfg.Paths.WorkDir},
		{"Log directory", cfg.Paths.LogDir},
	}
	results := make([]Result, 0, len(dirs)+5)
	for _, d := range dirs {
		results = append(results, CheckDirectoryAccess(d.name, d.path))
	}
	if cfg.Watch.InboxDir != "" {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Watch.InboxDir))
	}

	for _, b := range Binaries(cfg) {
		results = append(results, CheckBinary(b))
	}
	return results
}

// Failed returns the results of required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// Summary joins failed results into one line for error messages.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}
