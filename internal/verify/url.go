package verify

import (
	"strings"
)

// DefaultBaseURL is the library root of the reference source.
const DefaultBaseURL = "https://vedabase.io/en/library"

// VerseURL builds the page URL of c under base, e.g.
// base/bg/2/47/, base/sb/1/2/6/, base/cc/adi/1/1/, base/noi/4/.
// Ranges resolve to their first verse.
func VerseURL(base string, c Citation) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	parts := []string{base, strings.ToLower(string(c.Scripture))}
	if c.Chapter != "" {
		for _, part := range strings.Split(c.Chapter, ".") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, strings.ToLower(part))
			}
		}
	}
	parts = append(parts, c.FirstVerse())
	return strings.Join(parts, "/") + "/"
}
