package contracts

import (
	"time"

	"lecturebook/internal/stage"
)

// Chapter is one surviving source item in the compiled book.
type Chapter struct {
	Number          int      `json:"number"`
	ItemIndex       int      `json:"item_index"`
	Title           string   `json:"title"`
	ContentMarkdown string   `json:"content_markdown"`
	SourceURL       string   `json:"source_url,omitempty"`
	SourceDate      string   `json:"source_date,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	VerseReferences []string `json:"verse_references,omitempty"`
	Themes          []string `json:"themes,omitempty"`
	Warnings        int      `json:"warnings,omitempty"`
}

// SourceStatus marks whether a source item made it into the book.
type SourceStatus string

const (
	SourceSucceeded SourceStatus = "success"
	SourceFailed    SourceStatus = "failed"
)

// SourceReference is a back-matter entry for one submitted source item.
type SourceReference struct {
	Order           int          `json:"order"`
	Title           string       `json:"title"`
	URL             string       `json:"url"`
	Date            string       `json:"date,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	Status          SourceStatus `json:"status"`
	FailedStage     string       `json:"failed_stage,omitempty"`
	ErrorCode       string       `json:"error_code,omitempty"`
}

// CompileReport summarizes the compiled book.
type CompileReport struct {
	TotalChapters         int      `json:"total_chapters"`
	TotalWords            int      `json:"total_words"`
	TotalVersesReferenced int      `json:"total_verses_referenced"`
	VerifiedVerseCount    int      `json:"verified_verse_count"`
	UnverifiedVerseCount  int      `json:"unverified_verse_count"`
	Warnings              []string `json:"warnings,omitempty"`
}

// CompileOutput is the job-level book assembled from every surviving item.
type CompileOutput struct {
	Title            string            `json:"title"`
	Speaker          string            `json:"speaker,omitempty"`
	CompiledAt       time.Time         `json:"compiled_at"`
	Chapters         []Chapter         `json:"chapters"`
	VerseIndex       map[string][]int  `json:"verse_index"`
	ThemeIndex       map[string][]int  `json:"theme_index"`
	SourceReferences []SourceReference `json:"source_references"`
	Report           CompileReport     `json:"report"`
	FullMarkdown     string            `json:"full_markdown"`
}

func (*CompileOutput) Stage() stage.Stage { return stage.Compile }

func (c *CompileOutput) Validate() error {
	if blank(c.Title) {
		return invalid(stage.Compile, "title is empty")
	}
	if len(c.Chapters) == 0 {
		return invalid(stage.Compile, "no chapters")
	}
	if len(c.Chapters) != c.Report.TotalChapters {
		return invalid(stage.Compile, "%d chapters but report counts %d", len(c.Chapters), c.Report.TotalChapters)
	}
	for i, ch := range c.Chapters {
		if ch.Number != i+1 {
			return invalid(stage.Compile, "chapter %d numbered %d", i+1, ch.Number)
		}
		if blank(ch.ContentMarkdown) {
			return invalid(stage.Compile, "chapter %d has no content", ch.Number)
		}
	}
	if blank(c.FullMarkdown) {
		return invalid(stage.Compile, "full_markdown is empty")
	}
	return nil
}
