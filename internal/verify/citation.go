package verify

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Scripture is the short code of a supported source text.
type Scripture string

const (
	BG  Scripture = "BG"
	SB  Scripture = "SB"
	CC  Scripture = "CC"
	NOI Scripture = "NOI"
	ISO Scripture = "ISO"
	BS  Scripture = "BS"
)

var scripturePriority = []Scripture{BG, SB, CC, NOI, ISO, BS}

var scriptureTitles = map[Scripture]string{
	BG:  "Bhagavad-gita As It Is",
	SB:  "Srimad-Bhagavatam",
	CC:  "Sri Caitanya-caritamrta",
	NOI: "The Nectar of Instruction",
	ISO: "Sri Isopanisad",
	BS:  "Brahma-samhita",
}

// Scriptures lists the supported scriptures in reporting priority order.
func Scriptures() []Scripture {
	return append([]Scripture(nil), scripturePriority...)
}

// ParseScripture resolves a case-insensitive scripture code.
func ParseScripture(value string) (Scripture, bool) {
	candidate := Scripture(strings.ToUpper(strings.TrimSpace(value)))
	for _, s := range scripturePriority {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// Priority returns the reporting rank (0 first); unknown codes sort last.
func (s Scripture) Priority() int {
	for i, candidate := range scripturePriority {
		if candidate == s {
			return i
		}
	}
	return len(scripturePriority)
}

// Title returns the full book title.
func (s Scripture) Title() string {
	if title, ok := scriptureTitles[s]; ok {
		return title
	}
	return string(s)
}

// Origin records how a citation was found.
type Origin string

const (
	OriginPattern Origin = "pattern-matched"
	OriginModel   Origin = "model-inferred"
	OriginFuzzy   Origin = "fuzzy-matched"
)

func (o Origin) rank() int {
	switch o {
	case OriginPattern:
		return 0
	case OriginModel:
		return 1
	default:
		return 2
	}
}

// Key is the normalized canonical reference, e.g. "BG 2.47" or "CC Adi 1.1".
type Key string

// ErrMalformedLocator reports a locator that does not fit its scripture's template.
var ErrMalformedLocator = errors.New("malformed locator")

// Citation is one scripture reference found in a transcript.
type Citation struct {
	Scripture Scripture `json:"scripture"`
	// Chapter holds the dotted chapter path: "2" for BG, "1.2" for SB,
	// "Adi.1" for CC, empty for NOI and ISO.
	Chapter      string  `json:"chapter,omitempty"`
	Verse        string  `json:"verse"`
	Origin       Origin  `json:"origin"`
	Offset       int     `json:"offset"`
	SegmentIndex int     `json:"segment_index"`
	Context      string  `json:"context,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// Locator renders the scripture-specific position, e.g. "2.47" or "Adi 1.1".
func (c Citation) Locator() string {
	switch c.Scripture {
	case NOI, ISO:
		return c.Verse
	case CC:
		division, chapter, _ := strings.Cut(c.Chapter, ".")
		return division + " " + chapter + "." + c.Verse
	default:
		if c.Chapter == "" {
			return c.Verse
		}
		return c.Chapter + "." + c.Verse
	}
}

// Key returns the canonical reference used for deduplication.
func (c Citation) Key() Key {
	return Key(string(c.Scripture) + " " + c.Locator())
}

// CacheKey returns the persistent cache key SCRIPTURE_chapter_verse.
func (c Citation) CacheKey() string {
	return string(c.Scripture) + "_" + c.Chapter + "_" + c.Verse
}

// FirstVerse returns the first verse of a range ("47-48" -> "47").
func (c Citation) FirstVerse() string {
	first, _, _ := strings.Cut(c.Verse, "-")
	return strings.TrimSpace(first)
}

var (
	verseExpr      = `(\d{1,3}(?:-\d{1,3})?)`
	bgLocator      = regexp.MustCompile(`^(\d{1,2})\.` + verseExpr + `$`)
	sbLocator      = regexp.MustCompile(`^(\d{1,2})\.(\d{1,3})\.` + verseExpr + `$`)
	ccLocator      = regexp.MustCompile(`(?i)^(adi|madhya|antya)\s+(\d{1,2})\.` + verseExpr + `$`)
	singleLocator  = regexp.MustCompile(`^` + verseExpr + `$`)
	bsLocator      = regexp.MustCompile(`^(\d)\.` + verseExpr + `$`)
	referenceSplit = regexp.MustCompile(`^\s*([A-Za-z]{2,3})\.?\s+(.+?)\s*$`)
	hyphenSpacing  = regexp.MustCompile(`\s*-\s*`)
)

// NewCitation validates locator against the scripture's template and builds a
// citation with the given origin. Malformed locators return ErrMalformedLocator.
func NewCitation(scripture Scripture, locator string, origin Origin) (Citation, error) {
	locator = strings.Join(strings.Fields(locator), " ")
	locator = hyphenSpacing.ReplaceAllString(locator, "-")
	c := Citation{Scripture: scripture, Origin: origin}
	switch scripture {
	case BG:
		m := bgLocator.FindStringSubmatch(locator)
		if m == nil || !inRange(m[1], 1, 18) {
			return Citation{}, malformed(scripture, locator)
		}
		c.Chapter, c.Verse = trimZeros(m[1]), m[2]
	case SB:
		m := sbLocator.FindStringSubmatch(locator)
		if m == nil || !inRange(m[1], 1, 12) || !inRange(m[2], 1, 90) {
			return Citation{}, malformed(scripture, locator)
		}
		c.Chapter, c.Verse = trimZeros(m[1])+"."+trimZeros(m[2]), m[3]
	case CC:
		m := ccLocator.FindStringSubmatch(locator)
		if m == nil || !inRange(m[2], 1, 25) {
			return Citation{}, malformed(scripture, locator)
		}
		c.Chapter, c.Verse = titleDivision(m[1])+"."+trimZeros(m[2]), m[3]
	case NOI:
		m := singleLocator.FindStringSubmatch(locator)
		if m == nil || !inRange(firstOf(m[1]), 1, 11) {
			return Citation{}, malformed(scripture, locator)
		}
		c.Verse = m[1]
	case ISO:
		m := singleLocator.FindStringSubmatch(locator)
		if m == nil || !inRange(firstOf(m[1]), 1, 18) {
			return Citation{}, malformed(scripture, locator)
		}
		c.Verse = m[1]
	case BS:
		m := bsLocator.FindStringSubmatch(locator)
		if m == nil {
			return Citation{}, malformed(scripture, locator)
		}
		c.Chapter, c.Verse = m[1], m[2]
	default:
		return Citation{}, fmt.Errorf("%w: unknown scripture %q", ErrMalformedLocator, scripture)
	}
	if !validRange(c.Verse) {
		return Citation{}, malformed(scripture, locator)
	}
	c.Verse = trimRangeZeros(c.Verse)
	return c, nil
}

// ParseReference parses a canonical reference string such as "BG 2.47",
// "SB 1.2.6", or "CC Madhya 22.93".
func ParseReference(ref string, origin Origin) (Citation, error) {
	m := referenceSplit.FindStringSubmatch(ref)
	if m == nil {
		return Citation{}, fmt.Errorf("%w: %q", ErrMalformedLocator, ref)
	}
	scripture, ok := ParseScripture(m[1])
	if !ok {
		return Citation{}, fmt.Errorf("%w: unknown scripture in %q", ErrMalformedLocator, ref)
	}
	return NewCitation(scripture, m[2], origin)
}

// titleDivision builds a fresh caser per call; cases.Caser is not safe for
// concurrent use.
func titleDivision(division string) string {
	return cases.Title(language.English).String(strings.ToLower(division))
}

func malformed(scripture Scripture, locator string) error {
	return fmt.Errorf("%w: %s %q", ErrMalformedLocator, scripture, locator)
}

func inRange(value string, lo, hi int) bool {
	n, err := strconv.Atoi(value)
	return err == nil && n >= lo && n <= hi
}

func firstOf(verse string) string {
	first, _, _ := strings.Cut(verse, "-")
	return first
}

func validRange(verse string) bool {
	first, last, isRange := strings.Cut(verse, "-")
	a, err := strconv.Atoi(first)
	if err != nil || a < 1 {
		return false
	}
	if !isRange {
		return true
	}
	b, err := strconv.Atoi(last)
	return err == nil && b >= a
}

func trimZeros(value string) string {
	n, err := strconv.Atoi(value)
	if err != nil {
		return value
	}
	return strconv.Itoa(n)
}

func trimRangeZeros(verse string) string {
	first, last, isRange := strings.Cut(verse, "-")
	if !isRange {
		return trimZeros(first)
	}
	return trimZeros(first) + "-" + trimZeros(last)
}
