package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

type tableSettings struct {
	maxWidths map[int]int
	footer    []string
}

type tableOption func(*tableSettings)

// withMaxWidth trims cells of the zero-based column to width runes.
func withMaxWidth(column, width int) tableOption {
	return func(s *tableSettings) {
		if s.maxWidths == nil {
			s.maxWidths = make(map[int]int)
		}
		s.maxWidths[column] = width
	}
}

func withFooter(cells ...string) tableOption {
	return func(s *tableSettings) { s.footer = cells }
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment, opts ...tableOption) string {
	if len(headers) == 0 {
		return ""
	}
	var settings tableSettings
	for _, opt := range opts {
		opt(&settings)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}
	if len(settings.footer) > 0 {
		tw.AppendFooter(toRow(settings.footer, len(headers)))
		tw.Style().Format.Footer = text.FormatDefault
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			cfg.Align = text.AlignRight
			cfg.AlignFooter = text.AlignRight
		}
		if width := settings.maxWidths[i]; width > 0 {
			cfg.WidthMax = width
			cfg.WidthMaxEnforcer = text.Trim
		}
		configs[i] = cfg
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// toRow pads or truncates cells to exactly n columns.
func toRow(cells []string, n int) table.Row {
	row := make(table.Row, n)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}
