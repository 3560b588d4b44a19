package verify

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"lecturebook/internal/logging"
	"lecturebook/internal/textutil"
)

const (
	contextRadius    = 50
	textNoLookback   = 300
	fuzzyContextSize = 100
)

// Candidate is a reference proposed by a model or fuzzy matcher. Reference is
// a canonical string such as "BG 2.47".
type Candidate struct {
	Reference    string  `json:"reference"`
	Context      string  `json:"context,omitempty"`
	SegmentIndex int     `json:"segment_index,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// ModelExtractor proposes citations a pattern match cannot see, such as
// paraphrased or loosely spoken references. known lists keys already found.
type ModelExtractor interface {
	ExtractCitations(ctx context.Context, text string, known []Key) ([]Candidate, error)
}

// FuzzyMatcher maps a garbled recitation to likely verses, best first.
type FuzzyMatcher interface {
	MatchVerse(ctx context.Context, passage string) ([]Candidate, error)
}

// Identifier finds citations in transcript text.
type Identifier struct {
	Model         ModelExtractor
	Fuzzy         FuzzyMatcher
	MinFuzzyScore float64
	Logger        *slog.Logger
}

type patternKind int

const (
	kindBG patternKind = iota
	kindSB
	kindSBCanto
	kindTextNo
	kindCC
	kindNOI
	kindISO
	kindBS
)

type versePattern struct {
	kind patternKind
	re   *regexp.Regexp
	// abbreviated patterns must not start inside a word ("jobs 1.2" is not BS 1.2)
	bounded bool
}

const (
	verseGroup = `(\d{1,3}(?:\s*-\s*\d{1,3})?)`
	bgName     = `(?:bhagavad[- ]?g[iī]t[aā]|bg\.?)`
	sbName     = `(?:(?:[sś]r[iī]mad[- ]?)?bh[aā]gavatam|sb)`
	noiName    = `(?:nectar\s+of\s+instruction|upadeshamrita|upade[sś][aā]m[rṛ]ta)`
)

// Order matters: more specific forms come first so their offsets win.
var versePatterns = []versePattern{
	{kindBG, regexp.MustCompile(`(?i)` + bgName + `\s*(\d{1,2})[.:\s]+` + verseGroup), true},
	{kindBG, regexp.MustCompile(`(?i)` + bgName + `[,\s]*chapter\s+(\d{1,2})[,\s]*verse\s+(\d{1,3})`), true},
	{kindSB, regexp.MustCompile(`(?i)` + sbName + `\s*(\d{1,2})\.(\d{1,2})\.` + verseGroup), true},
	{kindSB, regexp.MustCompile(`(?i)` + sbName + `[,\s]*canto\s+(\d{1,2})[,\s]*chapter\s+(\d{1,2})[,\s]*verse\s+(\d{1,3})`), true},
	{kindSBCanto, regexp.MustCompile(`(?i)(\d{1,2})\s*canto\s+(\d{1,2})\s*chapter(?:[.\s]*(?:text|verse)\s+(?:no\.?\s*)?(\d{1,3}))?`), false},
	{kindSBCanto, regexp.MustCompile(`(?i)canto\s+(\d{1,2})[,\s]+chapter\s+(\d{1,2})(?:[,.\s]*(?:text|verse)\s+(?:no\.?\s*)?(\d{1,3}))?`), false},
	{kindTextNo, regexp.MustCompile(`(?i)(?:text|verse)\s+(?:no\.?\s*|number\s+)(\d{1,3})`), false},
	{kindCC, regexp.MustCompile(`(?i)(?:caitanya[- ]?carit[aā]m[rṛ]ta|cc)\s*([aā]di|madhya|antya)\s*(\d{1,2})\.` + verseGroup), true},
	{kindNOI, regexp.MustCompile(`(?i)(?:` + noiName + `|noi)\s*(?:text\s+)?(\d{1,2})`), true},
	{kindNOI, regexp.MustCompile(`(?i)(?:(?:verse|text)\s+(\d{1,2})|(\d{1,2})\s+(?:verse|text))\s+of\s+` + noiName), false},
	{kindISO, regexp.MustCompile(`(?i)(?:[sś]r[iī]\s+[iī][sś]opani[sṣ]ad|[iī][sś]opani[sṣ]ad|iso)\s*(?:mantra\s+)?(\d{1,2})`), true},
	{kindBS, regexp.MustCompile(`(?i)(?:brahma[- ]?sa[mṁ]hit[aā]|bs)\s*(\d{1,2})\.(\d{1,3})`), true},
}

var (
	cantoMention   = regexp.MustCompile(`(?i)(\d{1,2})\s*canto|canto\s+(\d{1,2})`)
	chapterMention = regexp.MustCompile(`(?i)(\d{1,2})\s*chapter|chapter\s+(\d{1,2})`)
)

// Identify finds every citation in text. segments are the transcript segment
// texts whose single-space join is text; they map offsets to segment indices.
// Model and fuzzy failures are logged and skipped; only cancellation is returned.
func (id *Identifier) Identify(ctx context.Context, text string, segments []string) (*CitationSet, error) {
	logger := id.logger()
	set := NewCitationSet()

	for _, c := range matchPatterns(text, segments) {
		set.Add(c)
	}
	patternCount := set.Len()

	if id.Model != nil {
		candidates, err := id.Model.ExtractCitations(ctx, text, set.Keys())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logging.WarnWithContext(logger, "model citation extraction failed", "model_extraction_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check llm credentials and model availability"),
				logging.String(logging.FieldImpact, "only pattern-matched citations are used"),
			)
		}
		for _, cand := range candidates {
			c, err := ParseReference(cand.Reference, OriginModel)
			if err != nil {
				logger.Debug("model candidate rejected", logging.String("reference", cand.Reference), logging.Error(err))
				continue
			}
			c.Offset, c.SegmentIndex, c.Context = -1, clampSegment(cand.SegmentIndex, segments), strings.TrimSpace(cand.Context)
			if c.Context != "" {
				if at := strings.Index(text, c.Context); at >= 0 {
					c.Offset = at
					c.SegmentIndex = segmentIndex(segments, at)
				}
			}
			set.Add(c)
		}
	}
	modelCount := set.Len() - patternCount

	if id.Fuzzy != nil {
		if err := id.matchFuzzy(ctx, set, segments); err != nil {
			return nil, err
		}
	}

	logger.Info("citations identified",
		logging.String(logging.FieldEventType, "citations_identified"),
		logging.Int("pattern_matched", patternCount),
		logging.Int("model_inferred", modelCount),
		logging.Int("fuzzy_matched", set.Len()-patternCount-modelCount),
	)
	return set, nil
}

func (id *Identifier) matchFuzzy(ctx context.Context, set *CitationSet, segments []string) error {
	logger := id.logger()
	for i, passage := range segments {
		if set.coversSegment(i) || !LooksLikeRecitation(passage) {
			continue
		}
		candidates, err := id.Fuzzy.MatchVerse(ctx, passage)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Debug("fuzzy match failed", logging.Int("segment", i), logging.Error(err))
			continue
		}
		for _, cand := range candidates {
			if cand.Score < id.MinFuzzyScore {
				continue
			}
			c, err := ParseReference(cand.Reference, OriginFuzzy)
			if err != nil {
				continue
			}
			c.Offset = segmentOffset(segments, i)
			c.SegmentIndex = i
			c.Score = cand.Score
			c.Context = truncateRunes(strings.TrimSpace(passage), fuzzyContextSize)
			set.Add(c)
			break
		}
	}
	return nil
}

func (id *Identifier) logger() *slog.Logger {
	if id == nil || id.Logger == nil {
		return logging.NewNop()
	}
	return id.Logger
}

// matchPatterns runs every pattern over text and its ordinal-normalized form.
func matchPatterns(text string, segments []string) []Citation {
	var out []Citation
	normalized, offsets := normalizeOrdinals(text)
	variants := []struct {
		search string
		origin func(int) int
	}{
		{text, func(i int) int { return i }},
		{normalized, func(i int) int { return offsets[i] }},
	}
	for _, variant := range variants {
		for _, p := range versePatterns {
			for _, m := range p.re.FindAllStringSubmatchIndex(variant.search, -1) {
				if p.bounded && !wordStart(variant.search, m[0]) {
					continue
				}
				locator, scripture, ok := buildLocator(p.kind, variant.search, m)
				if !ok {
					continue
				}
				c, err := NewCitation(scripture, locator, OriginPattern)
				if err != nil {
					continue
				}
				start, end := variant.origin(m[0]), variant.origin(m[1])
				c.Offset = start
				c.SegmentIndex = segmentIndex(segments, start)
				c.Context = surrounding(text, start, end, contextRadius)
				out = append(out, c)
			}
		}
	}
	return out
}

func buildLocator(kind patternKind, text string, m []int) (string, Scripture, bool) {
	group := func(n int) string {
		if 2*n+1 >= len(m) || m[2*n] < 0 {
			return ""
		}
		return text[m[2*n]:m[2*n+1]]
	}
	switch kind {
	case kindBG:
		return group(1) + "." + group(2), BG, true
	case kindSB:
		return group(1) + "." + group(2) + "." + group(3), SB, true
	case kindSBCanto:
		if group(3) == "" {
			return "", "", false
		}
		return group(1) + "." + group(2) + "." + group(3), SB, true
	case kindTextNo:
		canto, chapter, ok := nearbyCantoChapter(text, m[0])
		if !ok {
			return "", "", false
		}
		return canto + "." + chapter + "." + group(1), SB, true
	case kindCC:
		return textutil.Fold(group(1)) + " " + group(2) + "." + group(3), CC, true
	case kindNOI:
		verse := group(1)
		if verse == "" {
			verse = group(2)
		}
		return verse, NOI, verse != ""
	case kindISO:
		return group(1), ISO, true
	case kindBS:
		return group(1) + "." + group(2), BS, true
	}
	return "", "", false
}

// nearbyCantoChapter resolves a standalone "Text No. N" against the nearest
// canto and chapter mentions in the preceding window.
func nearbyCantoChapter(text string, at int) (string, string, bool) {
	start := at - textNoLookback
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start++
	}
	window, _ := normalizeOrdinals(text[start:at])
	canto := lastNumber(cantoMention, window)
	chapter := lastNumber(chapterMention, window)
	if canto == "" || chapter == "" {
		return "", "", false
	}
	return canto, chapter, true
}

func lastNumber(re *regexp.Regexp, text string) string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1]
	for _, g := range last[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

var wordOrdinals = map[string]string{
	"first": "1", "second": "2", "third": "3", "fourth": "4", "fifth": "5",
	"sixth": "6", "seventh": "7", "eighth": "8", "ninth": "9", "tenth": "10",
	"eleventh": "11", "twelfth": "12", "thirteenth": "13", "fourteenth": "14",
	"fifteenth": "15", "sixteenth": "16", "seventeenth": "17", "eighteenth": "18",
	"nineteenth": "19", "twentieth": "20",
}

var ordinalPattern = regexp.MustCompile(`(?i)\b(?:(\d{1,3})(?:st|nd|rd|th)|(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|eleventh|twelfth|thirteenth|fourteenth|fifteenth|sixteenth|seventeenth|eighteenth|nineteenth|twentieth))\b`)

// normalizeOrdinals rewrites "3rd" and "third" to "3". The returned slice maps
// every byte offset of the result (plus its end) to an offset in text.
func normalizeOrdinals(text string) (string, []int) {
	var b strings.Builder
	b.Grow(len(text))
	offsets := make([]int, 0, len(text)+1)
	last := 0
	for _, m := range ordinalPattern.FindAllStringSubmatchIndex(text, -1) {
		for i := last; i < m[0]; i++ {
			b.WriteByte(text[i])
			offsets = append(offsets, i)
		}
		digits := ""
		if m[2] >= 0 {
			digits = text[m[2]:m[3]]
		} else {
			digits = wordOrdinals[strings.ToLower(text[m[4]:m[5]])]
		}
		for range len(digits) {
			offsets = append(offsets, m[0])
		}
		b.WriteString(digits)
		last = m[1]
	}
	for i := last; i < len(text); i++ {
		b.WriteByte(text[i])
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return b.String(), offsets
}

// segmentIndex maps a byte offset in the joined transcript to its segment.
func segmentIndex(segments []string, offset int) int {
	if len(segments) == 0 || offset < 0 {
		return 0
	}
	pos := 0
	for i, seg := range segments {
		pos += len(seg) + 1
		if pos > offset {
			return i
		}
	}
	return len(segments) - 1
}

func segmentOffset(segments []string, index int) int {
	pos := 0
	for i := 0; i < index && i < len(segments); i++ {
		pos += len(segments[i]) + 1
	}
	return pos
}

func clampSegment(index int, segments []string) int {
	if index < 0 || len(segments) == 0 {
		return 0
	}
	if index >= len(segments) {
		return len(segments) - 1
	}
	return index
}

func wordStart(text string, at int) bool {
	if at == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:at])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// surrounding returns text[start:end] widened by radius runes on each side.
func surrounding(text string, start, end, radius int) string {
	from := start
	for n := 0; n < radius && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < radius && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return strings.TrimSpace(text[from:to])
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

var recitationParticles = map[string]struct{}{
	"ca": {}, "tu": {}, "hi": {}, "eva": {}, "api": {}, "iti": {}, "vai": {},
	"na": {}, "sah": {}, "yah": {}, "te": {}, "mam": {}, "aham": {}, "tat": {},
	"yat": {}, "om": {}, "namah": {}, "sri": {},
}

const iastMarks = "āīūṛṝḷṅñṭḍṇśṣṁṃḥĀĪŪṚṜḶṄÑṬḌṆŚṢṀṂḤ"

// LooksLikeRecitation reports whether passage reads like a transliterated
// Sanskrit verse rather than English commentary.
func LooksLikeRecitation(passage string) bool {
	words := strings.Fields(passage)
	if len(words) < 4 {
		return false
	}
	var marked, particles, english int
	for _, w := range words {
		if strings.ContainsAny(w, iastMarks) {
			marked++
		}
		folded := strings.Trim(textutil.Fold(w), ".,;:!?\"'()")
		if _, ok := recitationParticles[folded]; ok {
			particles++
		}
		if _, ok := englishStopwords[folded]; ok {
			english++
		}
	}
	n := float64(len(words))
	if float64(english)/n > 0.2 {
		return false
	}
	return float64(marked)/n >= 0.3 || float64(particles)/n >= 0.2
}

var englishStopwords = map[string]struct{}{
	"the": {}, "and": {}, "is": {}, "of": {}, "to": {}, "that": {}, "this": {},
	"we": {}, "you": {}, "are": {}, "it": {}, "in": {}, "he": {}, "be": {},
	"so": {}, "not": {}, "was": {}, "for": {},
}
