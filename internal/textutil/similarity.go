package textutil

// CosineSimilarity scores two fingerprints in [0, 1]. A nil or empty
// fingerprint scores 0 against anything.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a.counts, b.counts
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for term, n := range small {
		dot += n * large[term]
	}
	return dot / (a.norm * b.norm)
}
