package transcribe

import "lecturebook/internal/config"

// Launcher runs WhisperX from an ephemeral uv environment.
const Launcher = "uvx"

// DefaultModel is used when the configuration names none.
const DefaultModel = "large-v3"

const (
	vadSilero   = "silero"
	vadPyannote = "pyannote"

	torchCUDAIndex = "https://download.pytorch.org/whl/cu128"
	pypiIndex      = "https://pypi.org/simple"
)

// decodeFlags tune WhisperX for long lectures where verses are recited
// quietly between stretches of speech: sentence segments, a sensitive VAD
// and a wide beam.
var decodeFlags = []string{
	"--output_format", "json",
	"--segment_resolution", "sentence",
	"--batch_size", "4",
	"--chunk_size", "15",
	"--vad_onset", "0.08",
	"--vad_offset", "0.07",
	"--beam_size", "10",
	"--best_of", "10",
	"--temperature", "0.0",
	"--patience", "1.0",
}

// Config selects the model, device and optional diarization.
type Config struct {
	Model       string
	CUDAEnabled bool
	// VADMethod is "silero" (default) or "pyannote"; pyannote needs HFToken.
	VADMethod string
	HFToken   string
	// Diarize labels segments with speakers. It is ignored without HFToken.
	Diarize  bool
	Language string
}

// FromConfig converts the transcription configuration section.
func FromConfig(cfg config.Transcription) Config {
	return Config{
		Model:       cfg.Model,
		CUDAEnabled: cfg.CUDAEnabled,
		VADMethod:   cfg.VADMethod,
		HFToken:     cfg.HFToken,
		Diarize:     cfg.Diarize,
		Language:    cfg.Language,
	}
}

func (c Config) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

func (c Config) vad() string {
	if c.VADMethod == "" {
		return vadSilero
	}
	return c.VADMethod
}

func (c Config) diarize() bool { return c.Diarize && c.HFToken != "" }
