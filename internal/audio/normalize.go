package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SampleRate is the sample rate WhisperX expects.
	SampleRate = 16000
	// Channels is the channel count WhisperX expects.
	Channels = 1
)

// Normalizer converts any ffmpeg-readable input to mono 16 kHz PCM WAV.
type Normalizer struct {
	FFmpeg string
	Run    Runner
}

// Normalize writes the normalized audio of source to dest. The output is
// written beside dest and renamed into place so a partial file is never
// left at dest.
func (n Normalizer) Normalize(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return errors.New("normalize audio: source and destination required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("normalize audio: ensure dir: %w", err)
	}
	binary := strings.TrimSpace(n.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	partial := dest + ".partial.wav"
	if _, err := runnerOrDefault(n.Run)(ctx, binary, NormalizeArgs(source, partial)...); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("ffmpeg normalize: %w", err)
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("normalize audio: finalize: %w", err)
	}
	return nil
}

// NormalizeArgs returns the ffmpeg arguments that convert source to dest.
func NormalizeArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", fmt.Sprintf("%d", Channels),
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}
