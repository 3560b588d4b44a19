package verify

import (
	"context"
	"sort"
	"strings"

	"lecturebook/internal/textutil"
)

// CacheFuzzyMatcher compares a recitation with the transliterations held in
// the verse cache using character trigram similarity. It needs no network and
// only knows verses that were verified before.
type CacheFuzzyMatcher struct {
	Cache *Cache
	TopN  int
}

// MatchVerse implements FuzzyMatcher.
func (m *CacheFuzzyMatcher) MatchVerse(ctx context.Context, passage string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := textutil.NewTrigramFingerprint(passage)
	if query == nil {
		return nil, nil
	}
	var out []Candidate
	for key, rec := range m.Cache.Records() {
		if strings.TrimSpace(rec.VerseText) == "" {
			continue
		}
		ref, ok := referenceFromCacheKey(key)
		if !ok {
			continue
		}
		score := textutil.CosineSimilarity(query, textutil.NewTrigramFingerprint(rec.VerseText))
		if score <= 0 {
			continue
		}
		out = append(out, Candidate{Reference: ref, Context: rec.VerseText, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Reference < out[j].Reference
	})
	limit := m.TopN
	if limit <= 0 {
		limit = 1
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// referenceFromCacheKey turns "SB_1.2_6" into "SB 1.2.6" and "CC_Adi.1_1"
// into "CC Adi 1.1".
func referenceFromCacheKey(key string) (string, bool) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return "", false
	}
	scripture, ok := ParseScripture(parts[0])
	if !ok {
		return "", false
	}
	c := Citation{Scripture: scripture, Chapter: parts[1], Verse: parts[2]}
	return string(c.Key()), true
}

// MultiFuzzyMatcher tries each matcher in order and returns the first
// non-empty result.
type MultiFuzzyMatcher []FuzzyMatcher

// MatchVerse implements FuzzyMatcher.
func (m MultiFuzzyMatcher) MatchVerse(ctx context.Context, passage string) ([]Candidate, error) {
	var firstErr error
	for _, matcher := range m {
		if matcher == nil {
			continue
		}
		candidates, err := matcher.MatchVerse(ctx, passage)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return nil, firstErr
}
