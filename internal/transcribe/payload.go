package transcribe

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"lecturebook/internal/contracts"
)

// Word represents a single word with timing from WhisperX output.
type Word struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score"`
	Speaker string  `json:"speaker"`
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text       string   `json:"text"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Speaker    string   `json:"speaker"`
	AvgLogprob *float64 `json:"avg_logprob"`
	Words      []Word   `json:"words"`
}

// Payload is the JSON structure from WhisperX output.
type Payload struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// LoadPayload loads a WhisperX JSON file.
func LoadPayload(jsonPath string) (Payload, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Payload{}, err
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload, nil
}

// Convert maps a WhisperX payload to a transcript. Empty segments are
// dropped and the rest reindexed; durationHint wins over the last segment end
// when positive.
func Convert(payload Payload, audioPath, model string, durationHint float64) *contracts.TranscriptOutput {
	segments := make([]contracts.Segment, 0, len(payload.Segments))
	speakers := make(map[string]struct{})
	for _, seg := range payload.Segments {
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}
		start := math.Max(seg.Start, 0)
		end := math.Max(seg.End, start)
		speaker := seg.Speaker
		if speaker == "" {
			speaker = dominantSpeaker(seg.Words)
		}
		if speaker != "" {
			speakers[speaker] = struct{}{}
		}
		segments = append(segments, contracts.Segment{
			Index:      len(segments),
			Start:      start,
			End:        end,
			Text:       text,
			Speaker:    speaker,
			Confidence: confidence(seg),
		})
	}

	duration := durationHint
	if duration <= 0 && len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}
	return &contracts.TranscriptOutput{
		SourceAudio:      audioPath,
		Segments:         segments,
		FullText:         contracts.JoinSegments(segments),
		DurationSeconds:  duration,
		Language:         isoLanguage(payload.Language),
		Model:            model,
		SpeakersDetected: len(speakers),
	}
}

// confidence averages the aligned word scores, falling back to the segment's
// average log probability. Zero means unknown.
func confidence(seg Segment) float64 {
	var sum float64
	var n int
	for _, w := range seg.Words {
		if w.Score > 0 {
			sum += w.Score
			n++
		}
	}
	if n > 0 {
		return clampUnit(sum / float64(n))
	}
	if seg.AvgLogprob != nil {
		return clampUnit(math.Exp(*seg.AvgLogprob))
	}
	return 0
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v > 1:
		return 1
	default:
		return math.Round(v*1000) / 1000
	}
}

// dominantSpeaker returns the speaker labelling most words, ties broken by
// first appearance.
func dominantSpeaker(words []Word) string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, w := range words {
		if w.Speaker == "" {
			continue
		}
		counts[w.Speaker]++
		if counts[w.Speaker] > bestCount {
			best, bestCount = w.Speaker, counts[w.Speaker]
		}
	}
	return best
}
