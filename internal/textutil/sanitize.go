package textutil

import "strings"

// FileToken turns a title or id into a lowercase path segment for rendered
// output. Diacritics are folded first ("Śrī Īśopaniṣad" becomes
// "sri_isopanisad"); hyphens survive, and every other run of separators
// collapses to a single underscore. Blank input yields "unknown".
func FileToken(value string) string {
	var b strings.Builder
	pending := false
	for _, r := range Fold(strings.TrimSpace(value)) {
		keep := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !keep {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
