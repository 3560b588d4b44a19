package contracts

import (
	"strings"

	"lecturebook/internal/stage"
)

// Segment is one timed span of transcribed speech.
type Segment struct {
	Index   int     `json:"index"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	// Confidence is in (0,1]; zero means the recognizer did not report one.
	Confidence float64 `json:"confidence,omitempty"`
}

// TranscriptOutput is the speech-to-text result for one source item.
type TranscriptOutput struct {
	SourceAudio      string    `json:"source_audio"`
	Segments         []Segment `json:"segments"`
	FullText         string    `json:"full_text"`
	DurationSeconds  float64   `json:"duration_seconds"`
	Language         string    `json:"language"`
	Model            string    `json:"model"`
	SpeakersDetected int       `json:"speakers_detected"`
}

func (*TranscriptOutput) Stage() stage.Stage { return stage.Transcribe }

func (t *TranscriptOutput) Validate() error {
	if len(t.Segments) == 0 {
		return invalid(stage.Transcribe, "no segments")
	}
	if blank(t.FullText) {
		return invalid(stage.Transcribe, "full_text is empty")
	}
	if t.DurationSeconds < 0 {
		return invalid(stage.Transcribe, "duration_seconds is negative")
	}
	maxEnd := 0.0
	for i, seg := range t.Segments {
		if seg.Index != i {
			return invalid(stage.Transcribe, "segment %d has index %d", i, seg.Index)
		}
		if seg.Start < 0 || seg.End < seg.Start {
			return invalid(stage.Transcribe, "segment %d has end %.2f before start %.2f", i, seg.End, seg.Start)
		}
		if blank(seg.Text) {
			return invalid(stage.Transcribe, "segment %d text is empty", i)
		}
		if seg.Confidence < 0 || seg.Confidence > 1 {
			return invalid(stage.Transcribe, "segment %d confidence out of range", i)
		}
		if seg.End > maxEnd {
			maxEnd = seg.End
		}
	}
	// 10% tolerance for timing drift.
	if t.DurationSeconds > 0 && maxEnd > t.DurationSeconds*1.1 {
		return invalid(stage.Transcribe, "segment end %.1fs exceeds duration %.1fs", maxEnd, t.DurationSeconds)
	}
	return nil
}

// SegmentTexts returns the text of each segment in order.
func (t *TranscriptOutput) SegmentTexts() []string {
	out := make([]string, len(t.Segments))
	for i, seg := range t.Segments {
		out[i] = seg.Text
	}
	return out
}

// JoinSegments builds the full text the way the transcriber does: segment
// texts joined by single spaces.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, strings.TrimSpace(seg.Text))
	}
	return strings.Join(parts, " ")
}
