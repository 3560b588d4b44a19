package textutil

import (
	"math"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// minTermLen drops particles ("a", "to", "of") from word fingerprints.
const minTermLen = 3

// Fingerprint is a term-frequency vector over folded text.
type Fingerprint struct {
	counts map[string]float64
	norm   float64
}

// NewFingerprint builds a word fingerprint; nil when no term survives.
func NewFingerprint(text string) *Fingerprint {
	return fingerprintOf(Tokenize(text))
}

// NewTrigramFingerprint builds a fingerprint of character trigrams over the
// folded text with separators collapsed to single spaces, so a recitation
// transcribed as "karmanye vadhika raste" still overlaps "karmaṇy evādhikāras te".
func NewTrigramFingerprint(text string) *Fingerprint {
	compact := []rune(strings.TrimSpace(nonAlnum.ReplaceAllString(Fold(text), " ")))
	if len(compact) < 3 {
		return nil
	}
	grams := make([]string, 0, len(compact)-2)
	for i := 3; i <= len(compact); i++ {
		grams = append(grams, string(compact[i-3:i]))
	}
	return fingerprintOf(grams)
}

func fingerprintOf(terms []string) *Fingerprint {
	if len(terms) == 0 {
		return nil
	}
	fp := &Fingerprint{counts: make(map[string]float64, len(terms))}
	for _, term := range terms {
		fp.counts[term]++
	}
	var sum float64
	for _, n := range fp.counts {
		sum += n * n
	}
	fp.norm = math.Sqrt(sum)
	return fp
}

// Tokenize returns the folded words of text that are at least minTermLen long.
func Tokenize(text string) []string {
	var terms []string
	for _, word := range nonAlnum.Split(Fold(text), -1) {
		if len(word) >= minTermLen {
			terms = append(terms, word)
		}
	}
	return terms
}

// TokenCount returns the number of distinct terms.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.counts)
}
