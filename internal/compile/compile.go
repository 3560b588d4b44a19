package compile

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// shortBookWords flags a book that is suspiciously short.
const shortBookWords = 1000

// Item is the per-item stage output of one surviving source.
type Item struct {
	Index      int
	Download   *contracts.DownloadOutput
	Transcript *contracts.TranscriptOutput
	Enrichment *contracts.EnrichmentOutput
	Validation *contracts.ValidationOutput
}

// FailedItem is a source that did not reach compilation.
type FailedItem struct {
	Index  int
	Source string
	Stage  stage.Stage
	Cause  services.CauseCode
}

// Request gathers everything the compile stage assembles into a book.
type Request struct {
	Title      string
	Speaker    string
	CompiledAt time.Time
	Items      []Item
	Failed     []FailedItem
	// Sources maps item index to the submitted source, used when an item
	// has no download output.
	Sources map[int]string
}

// Compiler assembles surviving items into one book.
type Compiler struct {
	Logger *slog.Logger
}

// Compile builds the book. Items whose validation did not pass are reported
// as failed sources; when none remain the result is ErrNoSurvivors.
func (c *Compiler) Compile(req Request) (*contracts.CompileOutput, error) {
	logger := c.logger()
	items := append([]Item(nil), req.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
	failed := append([]FailedItem(nil), req.Failed...)

	var survivors []Item
	for _, it := range items {
		if it.Validation != nil && !it.Validation.OverallPass {
			failed = append(failed, FailedItem{Index: it.Index, Source: sourceOf(it, req.Sources), Stage: stage.Validate, Cause: services.CauseValidation})
			continue
		}
		survivors = append(survivors, it)
	}
	if len(survivors) == 0 {
		return nil, services.Wrap(services.ErrNoSurvivors, string(stage.Compile), "select items", "no item passed validation", nil)
	}
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].Index < failed[j].Index })

	title := strings.TrimSpace(req.Title)
	if title == "" {
		if len(survivors) == 1 && survivors[0].Download != nil {
			title = survivors[0].Download.Title
		} else {
			title = "Lecture Notes"
		}
	}
	speaker := strings.TrimSpace(req.Speaker)
	if speaker == "" {
		speaker = firstSpeaker(survivors)
	}

	multi := len(survivors) > 1
	chapters := make([]contracts.Chapter, 0, len(survivors))
	for i, it := range survivors {
		chapters = append(chapters, buildChapter(i+1, it, multi))
	}

	out := &contracts.CompileOutput{
		Title:            title,
		Speaker:          speaker,
		CompiledAt:       req.CompiledAt.UTC(),
		Chapters:         chapters,
		VerseIndex:       VerseIndex(chapters),
		ThemeIndex:       ThemeIndex(chapters),
		SourceReferences: sourceReferences(survivors, failed, chapters, req.Sources),
	}
	out.FullMarkdown = assemble(out)
	out.Report = report(out, survivors, failed)

	logger.Info("book compiled",
		logging.String(logging.FieldEventType, "compile_complete"),
		logging.String("title", title),
		logging.Int("chapters", len(chapters)),
		logging.Int("failed_items", len(failed)),
		logging.Int("words", out.Report.TotalWords),
		logging.Int("verses", out.Report.TotalVersesReferenced),
		logging.Int("verified_verses", out.Report.VerifiedVerseCount),
	)
	for _, w := range out.Report.Warnings {
		logging.WarnWithContext(logger, "compile warning", "compile_warning", logging.String("warning", w))
	}
	return out, nil
}

func buildChapter(number int, it Item, multi bool) contracts.Chapter {
	ch := contracts.Chapter{
		Number:    number,
		ItemIndex: it.Index,
		Title:     fmt.Sprintf("Lecture %d", it.Index+1),
	}
	if d := it.Download; d != nil {
		ch.Title = d.Title
		ch.SourceURL = d.SourceURL
		ch.SourceDate = d.UploadDate
		ch.DurationSeconds = d.DurationSeconds
	}
	if ch.DurationSeconds == 0 && it.Transcript != nil {
		ch.DurationSeconds = it.Transcript.DurationSeconds
	}
	if e := it.Enrichment; e != nil {
		seen := make(map[string]struct{}, len(e.Citations))
		for _, c := range e.Citations {
			key := string(c.Key())
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ch.VerseReferences = append(ch.VerseReferences, key)
		}
		ch.Themes = append([]string(nil), e.Themes...)
	}
	if it.Validation != nil {
		ch.Warnings = len(it.Validation.Failed(contracts.SeverityWarning))
	}
	ch.ContentMarkdown = chapterMarkdown(ch, it, multi)
	return ch
}

// VerseIndex maps each reference to the chapters citing it, in chapter order.
func VerseIndex(chapters []contracts.Chapter) map[string][]int {
	index := make(map[string][]int)
	for _, ch := range chapters {
		for _, ref := range ch.VerseReferences {
			index[ref] = appendOnce(index[ref], ch.Number)
		}
	}
	return index
}

// ThemeIndex maps each theme to the chapters carrying it, in chapter order.
func ThemeIndex(chapters []contracts.Chapter) map[string][]int {
	index := make(map[string][]int)
	for _, ch := range chapters {
		for _, theme := range ch.Themes {
			index[theme] = appendOnce(index[theme], ch.Number)
		}
	}
	return index
}

func appendOnce(list []int, n int) []int {
	for _, v := range list {
		if v == n {
			return list
		}
	}
	return append(list, n)
}

func sourceReferences(survivors []Item, failed []FailedItem, chapters []contracts.Chapter, sources map[int]string) []contracts.SourceReference {
	refs := make([]contracts.SourceReference, 0, len(survivors)+len(failed))
	for i, it := range survivors {
		ch := chapters[i]
		refs = append(refs, contracts.SourceReference{
			Order:           it.Index + 1,
			Title:           ch.Title,
			URL:             sourceOf(it, sources),
			Date:            ch.SourceDate,
			DurationSeconds: ch.DurationSeconds,
			Status:          contracts.SourceSucceeded,
		})
	}
	for _, f := range failed {
		refs = append(refs, contracts.SourceReference{
			Order:       f.Index + 1,
			Title:       fmt.Sprintf("Lecture %d", f.Index+1),
			URL:         f.Source,
			Status:      contracts.SourceFailed,
			FailedStage: string(f.Stage),
			ErrorCode:   string(f.Cause),
		})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Order < refs[j].Order })
	return refs
}

func report(out *contracts.CompileOutput, survivors []Item, failed []FailedItem) contracts.CompileReport {
	verified := make(map[string]struct{})
	unverified := make(map[string]struct{})
	for _, it := range survivors {
		if it.Enrichment == nil {
			continue
		}
		for _, o := range it.Enrichment.Outcomes {
			if o.Verified() {
				verified[string(o.Key)] = struct{}{}
			}
		}
	}
	for ref := range out.VerseIndex {
		if _, ok := verified[ref]; !ok {
			unverified[ref] = struct{}{}
		}
	}

	r := contracts.CompileReport{
		TotalChapters:         len(out.Chapters),
		TotalWords:            len(strings.Fields(out.FullMarkdown)),
		TotalVersesReferenced: len(out.VerseIndex),
		VerifiedVerseCount:    len(verified),
		UnverifiedVerseCount:  len(unverified),
	}
	if r.TotalWords < shortBookWords {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Book is unusually short (< %d words)", shortBookWords))
	}
	if r.UnverifiedVerseCount > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d verse references could not be verified", r.UnverifiedVerseCount))
	}
	for _, f := range failed {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Source %d (%s) failed at %s: %s", f.Index+1, f.Source, f.Stage, f.Cause))
	}
	return r
}

func sourceOf(it Item, sources map[int]string) string {
	if it.Download != nil && it.Download.SourceURL != "" {
		return it.Download.SourceURL
	}
	if s, ok := sources[it.Index]; ok {
		return s
	}
	if it.Transcript != nil {
		return it.Transcript.SourceAudio
	}
	return ""
}

func firstSpeaker(items []Item) string {
	for _, it := range items {
		if it.Download != nil && it.Download.Speaker != "" {
			return it.Download.Speaker
		}
	}
	return ""
}

func (c *Compiler) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return logging.NewNop()
	}
	return c.Logger
}
