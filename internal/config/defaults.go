package config

const (
	defaultConfigPath              = "~/.config/lecturebook/config.toml"
	defaultDataDir                 = "~/.local/share/lecturebook"
	defaultCheckpointDir           = "~/.local/share/lecturebook/checkpoints"
	defaultOutputDir               = "~/lecturebook/output"
	defaultWorkDir                 = "~/.local/share/lecturebook/work"
	defaultLogDir                  = "~/.local/share/lecturebook/logs"
	defaultJobsDBPath              = "~/.local/share/lecturebook/jobs.db"
	defaultVerificationCachePath   = "~/.local/share/lecturebook/cache/verses.json"
	defaultVerificationBaseURL     = "https://vedabase.io/en/library"
	defaultItemConcurrency         = 1
	defaultStageTimeoutSeconds     = 1800
	defaultMaxConcurrentJobs       = 2
	defaultActivationThreshold     = 30000
	defaultChunkMinSize            = 5000
	defaultChunkMaxSize            = 40000
	defaultGapThresholdSeconds     = 5.0
	defaultGapWeight               = 1.0
	defaultSpeakerChangeWeight     = 2.0
	defaultReferenceBoundaryWeight = 1.5
	defaultRequestDelayMS          = 1000
	defaultMaxAttempts             = 3
	defaultInitialBackoffMS        = 2000
	defaultMaxBackoffMS            = 8000
	defaultVerificationHTTPTimeout = 30
	defaultFuzzyMinScore           = 0.4
	defaultLLMProvider             = "openrouter"
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-3-flash-preview"
	defaultGeminiModel             = "gemini-2.5-flash"
	defaultLLMReferer              = "https://github.com/lecturebook/lecturebook"
	defaultLLMTitle                = "Lecturebook"
	defaultLLMTimeoutSeconds       = 120
	defaultTranscriptionModel      = "large-v3"
	defaultVADMethod               = "silero"
	defaultTranscriptionLanguage   = "en"
	defaultYtDlpBinary             = "yt-dlp"
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultDownloadHTTPTimeout     = 600
	defaultMinWordsPerMinute       = 30
	defaultRepetitionWindow        = 8
	defaultRepetitionThreshold     = 4
	defaultMaxGapSeconds           = 30
	defaultMinConfidence           = 0.5
	defaultMinVerificationRate     = 0.5
	defaultEventsSubjectPrefix     = "lecturebook"
	defaultNtfyTimeoutSeconds      = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 60
	defaultFastPathScripture       = "BG"
)

var defaultWatchExtensions = []string{".mp3", ".m4a", ".wav", ".flac", ".ogg", ".opus", ".mp4", ".webm"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			CheckpointDir: defaultCheckpointDir,
			OutputDir:     defaultOutputDir,
			WorkDir:       defaultWorkDir,
			LogDir:        defaultLogDir,
		},
		Pipeline: Pipeline{
			ItemConcurrency:     defaultItemConcurrency,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
		},
		Jobs: Jobs{
			MaxConcurrent: defaultMaxConcurrentJobs,
			DBPath:        defaultJobsDBPath,
		},
		Chunking: Chunking{
			ActivationThreshold:     defaultActivationThreshold,
			MinSize:                 defaultChunkMinSize,
			MaxSize:                 defaultChunkMaxSize,
			GapThresholdSeconds:     defaultGapThresholdSeconds,
			GapWeight:               defaultGapWeight,
			SpeakerChangeWeight:     defaultSpeakerChangeWeight,
			ReferenceBoundaryWeight: defaultReferenceBoundaryWeight,
		},
		Verification: Verification{
			CachePath:          defaultVerificationCachePath,
			BaseURL:            defaultVerificationBaseURL,
			RequestDelayMS:     defaultRequestDelayMS,
			MaxAttempts:        defaultMaxAttempts,
			InitialBackoffMS:   defaultInitialBackoffMS,
			MaxBackoffMS:       defaultMaxBackoffMS,
			HTTPTimeoutSeconds: defaultVerificationHTTPTimeout,
			FuzzyMinScore:      defaultFuzzyMinScore,
			ModelExtraction:    true,
			FuzzyMatching:      true,
			FastPathScriptures: []string{defaultFastPathScripture},
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Transcription: Transcription{
			Model:     defaultTranscriptionModel,
			VADMethod: defaultVADMethod,
			Diarize:   true,
			Language:  defaultTranscriptionLanguage,
		},
		Download: Download{
			YtDlpBinary:        defaultYtDlpBinary,
			FFmpegBinary:       defaultFFmpegBinary,
			FFprobeBinary:      defaultFFprobeBinary,
			HTTPTimeoutSeconds: defaultDownloadHTTPTimeout,
		},
		Validation: Validation{
			MinWordsPerMinute:   defaultMinWordsPerMinute,
			RepetitionWindow:    defaultRepetitionWindow,
			RepetitionThreshold: defaultRepetitionThreshold,
			MaxGapSeconds:       defaultMaxGapSeconds,
			MinConfidence:       defaultMinConfidence,
			MinVerificationRate: defaultMinVerificationRate,
			ExpectedLanguage:    defaultTranscriptionLanguage,
		},
		Events: Events{
			SubjectPrefix:      defaultEventsSubjectPrefix,
			NtfyTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Watch: Watch{
			Extensions: append([]string(nil), defaultWatchExtensions...),
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
