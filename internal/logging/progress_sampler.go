package logging

import "strings"

// ProgressSampler thins progress reports to one per percentage bucket. Items
// of a job run concurrently, so state is tracked per item; a stage change for
// an item always passes.
type ProgressSampler struct {
	bucketSize float64
	items      map[int]sampleState
}

type sampleState struct {
	stage  string
	bucket int
}

// NewProgressSampler constructs a sampler with buckets of bucketSize percent
// (5 when bucketSize is not positive).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, items: make(map[int]sampleState)}
}

// ShouldLog reports whether a progress report for item should be shown.
// Job-level reports use item -1. A negative percent means unknown and only
// passes on a stage change.
func (s *ProgressSampler) ShouldLog(item int, stage string, percent float64) bool {
	if s == nil {
		return true
	}
	stage = strings.TrimSpace(stage)
	state, seen := s.items[item]
	emit := false
	if !seen || (stage != "" && stage != state.stage) {
		state = sampleState{stage: stage, bucket: -1}
		emit = true
	}
	if percent >= 0 {
		bucket := int(min(percent, 100) / s.bucketSize)
		if bucket > state.bucket {
			state.bucket = bucket
			emit = true
		}
	}
	s.items[item] = state
	return emit
}

// Reset forgets all items, for example when a new job starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	clear(s.items)
}
