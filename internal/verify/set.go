package verify

import "sort"

// CitationSet holds citations keyed by canonical reference. A key is stored at
// most once; when the same key arrives from a lower-ranked origin the stored
// citation is kept.
type CitationSet struct {
	byKey map[Key]int
	items []Citation
}

// NewCitationSet returns an empty set.
func NewCitationSet() *CitationSet {
	return &CitationSet{byKey: make(map[Key]int)}
}

// Add inserts c and reports whether its key was new. A citation whose origin
// outranks the stored one replaces it.
func (s *CitationSet) Add(c Citation) bool {
	key := c.Key()
	if idx, ok := s.byKey[key]; ok {
		if c.Origin.rank() < s.items[idx].Origin.rank() {
			s.items[idx] = c
		}
		return false
	}
	s.byKey[key] = len(s.items)
	s.items = append(s.items, c)
	return true
}

// Has reports whether key is present.
func (s *CitationSet) Has(key Key) bool {
	_, ok := s.byKey[key]
	return ok
}

// Len returns the number of distinct citations.
func (s *CitationSet) Len() int { return len(s.items) }

// Keys returns the stored keys in insertion order.
func (s *CitationSet) Keys() []Key {
	out := make([]Key, len(s.items))
	for i, c := range s.items {
		out[i] = c.Key()
	}
	return out
}

// Citations returns the citations ordered by position in the transcript.
// Citations without a known offset keep their insertion order within a segment.
func (s *CitationSet) Citations() []Citation {
	out := append([]Citation(nil), s.items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SegmentIndex != out[j].SegmentIndex {
			return out[i].SegmentIndex < out[j].SegmentIndex
		}
		if out[i].Offset < 0 || out[j].Offset < 0 {
			return false
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

// coversSegment reports whether any citation points at segment index.
func (s *CitationSet) coversSegment(index int) bool {
	for _, c := range s.items {
		if c.SegmentIndex == index {
			return true
		}
	}
	return false
}
