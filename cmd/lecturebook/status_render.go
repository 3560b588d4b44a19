package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"lecturebook/internal/preflight"
)

// checkState is the verdict shown for one doctor line.
type checkState struct {
	tag   string
	color string
}

const ansiReset = "\x1b[0m"

var (
	stateOK    = checkState{tag: "ok", color: "\x1b[32m"}
	stateWarn  = checkState{tag: "warn", color: "\x1b[33m"}
	stateFail  = checkState{tag: "fail", color: "\x1b[31m"}
	stateTitle = checkState{color: "\x1b[1;34m"}
)

const checkNameWidth = 22

func paint(s checkState, text string, colorize bool) string {
	if !colorize || s.color == "" {
		return text
	}
	return s.color + text + ansiReset
}

// checkLine renders "  <name> <tag> <message>" with the name padded so tags line up.
func checkLine(name string, s checkState, message string, colorize bool) string {
	line := fmt.Sprintf("  %-*s %-4s", checkNameWidth, name, s.tag)
	if message != "" {
		line += "  " + message
	}
	return paint(s, strings.TrimRight(line, " "), colorize)
}

func sectionTitle(title string, colorize bool) string {
	return paint(stateTitle, strings.ToUpper(strings.TrimSpace(title)), colorize)
}

// checkLines renders preflight results followed by a one-line verdict.
func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results)+1)
	for _, r := range results {
		state, msg := stateOK, r.Detail
		switch {
		case r.Passed:
		case r.Optional:
			state = stateWarn
		default:
			state = stateFail
		}
		lines = append(lines, checkLine(r.Name, state, msg, colorize))
	}
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return append(lines, fmt.Sprintf("  %d of %d checks passed", len(results), len(results)))
	}
	return append(lines, paint(stateFail, "  required: "+preflight.Summary(failed), colorize))
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
