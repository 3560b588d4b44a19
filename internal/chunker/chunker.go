package chunker

import (
	"sort"
	"strings"

	"lecturebook/internal/config"
	"lecturebook/internal/contracts"
	"lecturebook/internal/verify"
)

// Bounds limits chunk sizes in estimated size units.
type Bounds struct {
	ActivationThreshold int
	MinSize             int
	MaxSize             int
}

// Weights scores break candidates between adjacent segments.
type Weights struct {
	GapThresholdSeconds float64
	Gap                 float64
	SpeakerChange       float64
	ReferenceBoundary   float64
}

// DefaultBounds returns the stock bounds.
func DefaultBounds() Bounds {
	return Bounds{ActivationThreshold: 30000, MinSize: 5000, MaxSize: 40000}
}

// DefaultWeights returns the stock break weights.
func DefaultWeights() Weights {
	return Weights{GapThresholdSeconds: 5, Gap: 1.0, SpeakerChange: 2.0, ReferenceBoundary: 1.5}
}

// FromConfig converts the chunking configuration section.
func FromConfig(cfg config.Chunking) (Bounds, Weights) {
	bounds := Bounds{
		ActivationThreshold: cfg.ActivationThreshold,
		MinSize:             cfg.MinSize,
		MaxSize:             cfg.MaxSize,
	}
	weights := Weights{
		GapThresholdSeconds: cfg.GapThresholdSeconds,
		Gap:                 cfg.GapWeight,
		SpeakerChange:       cfg.SpeakerChangeWeight,
		ReferenceBoundary:   cfg.ReferenceBoundaryWeight,
	}
	return bounds, weights
}

// Chunk is a contiguous segment range [StartSegment, EndSegment) together
// with the citations and verification outcomes that fall inside it.
type Chunk struct {
	Index        int
	StartSegment int
	EndSegment   int
	Start        float64
	End          float64
	Size         int
	Text         string
	Citations    []verify.Citation
	Outcomes     []verify.Outcome
	Themes       []string
}

// Candidate is a scored break before segment Before.
type Candidate struct {
	Before int
	Score  float64
}

// EstimateSize approximates the model-token size of text as 1.3 units per
// word, rounded up.
func EstimateSize(text string) int {
	return (len(strings.Fields(text))*13 + 9) / 10
}

// Split partitions segments into chunks. It is a pure function: the same
// inputs always yield the same chunks. Transcripts at or below the activation
// threshold come back as one chunk, unless that chunk would exceed MaxSize.
func Split(segments []contracts.Segment, citations []verify.Citation, outcomes []verify.Outcome, bounds Bounds, weights Weights) []Chunk {
	if len(segments) == 0 {
		return nil
	}
	prefix := make([]int, len(segments)+1)
	for i, seg := range segments {
		prefix[i+1] = prefix[i] + EstimateSize(seg.Text)
	}
	if total := prefix[len(segments)]; total <= bounds.ActivationThreshold && total <= bounds.MaxSize {
		return assemble(segments, []int{0, len(segments)}, prefix, citations, outcomes)
	}

	candidates := Candidates(segments, citations, weights)
	breaks := selectBreaks(candidates, prefix, bounds.MinSize)
	edges := append([]int{0}, breaks...)
	edges = append(edges, len(segments))
	edges = forceSplit(edges, prefix, bounds.MaxSize)
	return assemble(segments, edges, prefix, citations, outcomes)
}

// Candidates scores every adjacent segment pair and returns those with a
// positive score, best first (ties by position).
func Candidates(segments []contracts.Segment, citations []verify.Citation, weights Weights) []Candidate {
	citedSegments := make(map[int]struct{}, len(citations))
	for _, c := range citations {
		citedSegments[clamp(c.SegmentIndex, len(segments))] = struct{}{}
	}
	var out []Candidate
	for i := 1; i < len(segments); i++ {
		prev, next := segments[i-1], segments[i]
		score := 0.0
		if gap := next.Start - prev.End; gap >= weights.GapThresholdSeconds {
			score += weights.Gap * gap
		}
		if prev.Speaker != "" && next.Speaker != "" && prev.Speaker != next.Speaker {
			score += weights.SpeakerChange
		}
		if _, ok := citedSegments[i]; ok {
			score += weights.ReferenceBoundary
		}
		if score > 0 {
			out = append(out, Candidate{Before: i, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Before < out[j].Before
	})
	return out
}

// selectBreaks accepts candidates greedily while every chunk stays at or
// above minSize. The result is sorted.
func selectBreaks(candidates []Candidate, prefix []int, minSize int) []int {
	last := len(prefix) - 1
	var breaks []int
	for _, cand := range candidates {
		at := sort.SearchInts(breaks, cand.Before)
		lo, hi := 0, last
		if at > 0 {
			lo = breaks[at-1]
		}
		if at < len(breaks) {
			hi = breaks[at]
		}
		if prefix[cand.Before]-prefix[lo] < minSize || prefix[hi]-prefix[cand.Before] < minSize {
			continue
		}
		breaks = append(breaks, 0)
		copy(breaks[at+1:], breaks[at:])
		breaks[at] = cand.Before
	}
	return breaks
}

// forceSplit halves every range above maxSize at the segment boundary closest
// to its size midpoint until each range fits or is a single segment.
func forceSplit(edges []int, prefix []int, maxSize int) []int {
	out := []int{edges[0]}
	for i := 1; i < len(edges); i++ {
		out = appendSplit(out, edges[i-1], edges[i], prefix, maxSize)
	}
	return out
}

func appendSplit(out []int, lo, hi int, prefix []int, maxSize int) []int {
	if prefix[hi]-prefix[lo] <= maxSize || hi-lo < 2 {
		return append(out, hi)
	}
	mid := midpoint(lo, hi, prefix)
	out = appendSplit(out, lo, mid, prefix, maxSize)
	return appendSplit(out, mid, hi, prefix, maxSize)
}

// midpoint returns the boundary in (lo, hi) that best balances the two sides.
func midpoint(lo, hi int, prefix []int) int {
	half := prefix[lo] + (prefix[hi]-prefix[lo])/2
	best, bestDist := lo+1, -1
	for k := lo + 1; k < hi; k++ {
		dist := prefix[k] - half
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = k, dist
		}
	}
	return best
}

func assemble(segments []contracts.Segment, edges []int, prefix []int, citations []verify.Citation, outcomes []verify.Outcome) []Chunk {
	byKey := make(map[verify.Key]verify.Outcome, len(outcomes))
	for _, o := range outcomes {
		byKey[o.Key] = o
	}
	chunks := make([]Chunk, 0, len(edges)-1)
	for i := 1; i < len(edges); i++ {
		lo, hi := edges[i-1], edges[i]
		chunk := Chunk{
			Index:        i - 1,
			StartSegment: lo,
			EndSegment:   hi,
			Start:        segments[lo].Start,
			End:          segments[hi-1].End,
			Size:         prefix[hi] - prefix[lo],
			Text:         contracts.JoinSegments(segments[lo:hi]),
		}
		seen := make(map[verify.Scripture]struct{})
		for _, c := range citations {
			idx := clamp(c.SegmentIndex, len(segments))
			if idx < lo || idx >= hi {
				continue
			}
			chunk.Citations = append(chunk.Citations, c)
			if o, ok := byKey[c.Key()]; ok {
				chunk.Outcomes = append(chunk.Outcomes, o)
			}
			seen[c.Scripture] = struct{}{}
		}
		chunk.Themes = themes(seen)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func themes(seen map[verify.Scripture]struct{}) []string {
	var out []string
	for _, s := range verify.Scriptures() {
		if _, ok := seen[s]; ok {
			out = append(out, string(s))
		}
	}
	return out
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}

// VerifiedOutcomes returns the chunk's outcomes that carry a verified record.
func (c Chunk) VerifiedOutcomes() []verify.Outcome {
	var out []verify.Outcome
	for _, o := range c.Outcomes {
		if o.Verified() {
			out = append(out, o)
		}
	}
	return out
}
