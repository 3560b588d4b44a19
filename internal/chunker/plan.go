package chunker

import (
	"lecturebook/internal/logging"
)

// PlanEntry describes one chunk without its text.
type PlanEntry struct {
	Index        int      `json:"index"`
	StartSegment int      `json:"start_segment"`
	EndSegment   int      `json:"end_segment"`
	Size         int      `json:"size"`
	Start        float64  `json:"start_seconds"`
	End          float64  `json:"end_seconds"`
	Citations    int      `json:"citations"`
	Themes       []string `json:"themes,omitempty"`
}

// Plan summarizes a chunking result for logs and the CLI preview.
type Plan struct {
	TotalSize int         `json:"total_size"`
	Chunked   bool        `json:"chunked"`
	Bounds    Bounds      `json:"bounds"`
	Entries   []PlanEntry `json:"entries"`
}

// Summarize builds the plan of chunks produced under bounds.
func Summarize(chunks []Chunk, bounds Bounds) Plan {
	plan := Plan{Chunked: len(chunks) > 1, Bounds: bounds}
	for _, c := range chunks {
		plan.TotalSize += c.Size
		plan.Entries = append(plan.Entries, PlanEntry{
			Index:        c.Index,
			StartSegment: c.StartSegment,
			EndSegment:   c.EndSegment,
			Size:         c.Size,
			Start:        c.Start,
			End:          c.End,
			Citations:    len(c.Citations),
			Themes:       c.Themes,
		})
	}
	return plan
}

// LogAttrs returns the attributes logged with the chunk_plan event.
func (p Plan) LogAttrs() []logging.Attr {
	smallest, largest := 0, 0
	for i, e := range p.Entries {
		if i == 0 || e.Size < smallest {
			smallest = e.Size
		}
		if e.Size > largest {
			largest = e.Size
		}
	}
	return []logging.Attr{
		logging.String(logging.FieldEventType, "chunk_plan"),
		logging.Bool("chunked", p.Chunked),
		logging.Int("chunks", len(p.Entries)),
		logging.Int("total_size", p.TotalSize),
		logging.Int("smallest_chunk", smallest),
		logging.Int("largest_chunk", largest),
	}
}
