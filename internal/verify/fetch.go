package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	purportExcerptRunes = 500
	maxPageBytes        = 4 << 20
	defaultUserAgent    = "lecturebook/1.0 (verse-reference-check)"
)

// ErrVerseNotFound reports a verse page the reference source does not have.
// It is not retried.
var ErrVerseNotFound = errors.New("verse not found")

// StatusError is a non-success HTTP response other than 404.
type StatusError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("verse fetch %s: http %d", e.URL, e.StatusCode)
}

// Retriable reports whether the status is worth another attempt.
func (e *StatusError) Retriable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Fetcher retrieves the canonical record of one citation.
type Fetcher interface {
	Fetch(ctx context.Context, c Citation) (Record, error)
}

// VedabaseFetcher reads verse pages from the vedabase library.
type VedabaseFetcher struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// NewVedabaseFetcher builds a fetcher with the given per-request timeout.
func NewVedabaseFetcher(baseURL string, timeout time.Duration) *VedabaseFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VedabaseFetcher{
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: defaultUserAgent,
	}
}

// Fetch downloads and parses the verse page of c. The record is verified
// only when the page carries a translation.
func (f *VedabaseFetcher) Fetch(ctx context.Context, c Citation) (Record, error) {
	url := VerseURL(f.BaseURL, c)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Record{}, fmt.Errorf("verse fetch: new request: %w", err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("verse fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return Record{URL: url}, fmt.Errorf("%w: %s", ErrVerseNotFound, url)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return Record{URL: url}, &StatusError{StatusCode: resp.StatusCode, URL: url, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	rec, err := ParseVersePage(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Record{URL: url}, fmt.Errorf("verse fetch %s: %w", url, err)
	}
	rec.URL = url
	return rec, nil
}

// ParseVersePage extracts the verse sections from a library page.
func ParseVersePage(r io.Reader) (Record, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Record{}, fmt.Errorf("parse verse page: %w", err)
	}
	var rec Record
	var purport string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Div {
			return true
		}
		switch {
		case hasClass(n, "r-devanagari") && rec.Devanagari == "":
			rec.Devanagari = nodeText(n, " ")
		case hasClass(n, "r-verse-text") && rec.VerseText == "":
			rec.VerseText = nodeText(n, "\n")
		case hasClass(n, "r-synonyms") && rec.Synonyms == "":
			rec.Synonyms = nodeText(n, " ")
		case hasClass(n, "r-translation") && rec.Translation == "":
			rec.Translation = nodeText(n, " ")
		case hasClass(n, "r-purport") && purport == "":
			purport = nodeText(n, "\n")
		default:
			return true
		}
		return false
	})

	if rec.Translation == "" && purport == "" {
		rec.Translation, purport = fallbackSections(doc)
	}
	if purport != "" {
		rec.PurportExcerpt = excerpt(purport, purportExcerptRunes)
		rec.CrossRefs = CrossReferences(purport)
	}
	rec.Verified = rec.Translation != ""
	return rec, nil
}

// fallbackSections handles pages without section classes by looking for
// blocks headed TRANSLATION and PURPORT inside the main content.
func fallbackSections(doc *html.Node) (translation, purport string) {
	var main *html.Node
	walk(doc, func(n *html.Node) bool {
		if main != nil {
			return false
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Main || n.DataAtom == atom.Article) {
			main = n
			return false
		}
		return true
	})
	if main == nil {
		return "", ""
	}
	walk(main, func(n *html.Node) bool {
		if n.Type != html.ElementNode || (n.DataAtom != atom.P && n.DataAtom != atom.Div) {
			return true
		}
		text := nodeText(n, " ")
		switch {
		case translation == "" && strings.HasPrefix(text, "TRANSLATION"):
			translation = strings.TrimSpace(strings.TrimPrefix(text, "TRANSLATION"))
			return false
		case purport == "" && strings.HasPrefix(text, "PURPORT"):
			purport = strings.TrimSpace(strings.TrimPrefix(text, "PURPORT"))
			return false
		}
		return true
	})
	return translation, purport
}

// walk visits n depth-first; visit returns false to skip a node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, field := range strings.Fields(attr.Val) {
			if field == class {
				return true
			}
		}
	}
	return false
}

// nodeText joins the trimmed text nodes under n with sep.
func nodeText(n *html.Node, sep string) string {
	var parts []string
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return false
		}
		if c.Type == html.TextNode {
			if text := strings.Join(strings.Fields(c.Data), " "); text != "" {
				parts = append(parts, text)
			}
		}
		return true
	})
	return strings.Join(parts, sep)
}

func excerpt(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

var (
	purportBG = regexp.MustCompile(`(?:Bg\.|BG|Bhagavad-gītā)\s*(\d+\.\d+)`)
	purportSB = regexp.MustCompile(`(?:SB|Bhāg\.)\s*(\d+\.\d+\.\d+)`)
	purportCC = regexp.MustCompile(`(?:Cc\.|CC)\s*(Ādi|Madhya|Antya|adi|madhya|antya)\s*(\d+\.\d+)`)
)

// CrossReferences lists the canonical references mentioned in a purport, in
// order of first appearance.
func CrossReferences(purport string) []string {
	var refs []string
	seen := make(map[Key]struct{})
	add := func(scripture Scripture, locator string) {
		c, err := NewCitation(scripture, locator, OriginPattern)
		if err != nil {
			return
		}
		if _, dup := seen[c.Key()]; dup {
			return
		}
		seen[c.Key()] = struct{}{}
		refs = append(refs, string(c.Key()))
	}
	for _, m := range purportBG.FindAllStringSubmatch(purport, -1) {
		add(BG, m[1])
	}
	for _, m := range purportSB.FindAllStringSubmatch(purport, -1) {
		add(SB, m[1])
	}
	for _, m := range purportCC.FindAllStringSubmatch(purport, -1) {
		add(CC, strings.Replace(strings.Replace(m[1], "Ā", "A", 1), "ā", "a", 1)+" "+m[2])
	}
	return refs
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}
