package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeVerification(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeTranscription()
	c.normalizeDownload()
	c.normalizeEvents()
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.checkpoint_dir", &c.Paths.CheckpointDir, defaultCheckpointDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"jobs.db_path", &c.Jobs.DBPath, defaultJobsDBPath},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeVerification() error {
	if strings.TrimSpace(c.Verification.CachePath) == "" {
		c.Verification.CachePath = defaultVerificationCachePath
	}
	var err error
	if c.Verification.CachePath, err = expandPath(c.Verification.CachePath); err != nil {
		return fmt.Errorf("verification.cache_path: %w", err)
	}
	c.Verification.BaseURL = strings.TrimRight(strings.TrimSpace(c.Verification.BaseURL), "/")
	if c.Verification.BaseURL == "" {
		c.Verification.BaseURL = defaultVerificationBaseURL
	}
	c.Verification.FastPathCommand = strings.TrimSpace(c.Verification.FastPathCommand)
	scriptures := make([]string, 0, len(c.Verification.FastPathScriptures))
	seen := make(map[string]struct{}, len(c.Verification.FastPathScriptures))
	for _, code := range c.Verification.FastPathScriptures {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		scriptures = append(scriptures, code)
	}
	c.Verification.FastPathScriptures = scriptures
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		default:
			c.LLM.APIKey = firstEnv("OPENROUTER_API_KEY")
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	switch {
	case c.LLM.BaseURL == "" && c.LLM.Provider == "openrouter":
		c.LLM.BaseURL = defaultLLMBaseURL
	case c.LLM.BaseURL == defaultLLMBaseURL && c.LLM.Provider == "gemini":
		c.LLM.BaseURL = ""
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" || (c.LLM.Provider == "gemini" && c.LLM.Model == defaultLLMModel) {
		if c.LLM.Provider == "gemini" {
			c.LLM.Model = defaultGeminiModel
		} else {
			c.LLM.Model = defaultLLMModel
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	c.Transcription.HFToken = strings.TrimSpace(c.Transcription.HFToken)
	if c.Transcription.HFToken == "" {
		c.Transcription.HFToken = firstEnv("HF_TOKEN", "HUGGING_FACE_HUB_TOKEN")
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Validation.ExpectedLanguage = strings.ToLower(strings.TrimSpace(c.Validation.ExpectedLanguage))
}

func (c *Config) normalizeDownload() {
	c.Download.YtDlpBinary = strings.TrimSpace(c.Download.YtDlpBinary)
	if c.Download.YtDlpBinary == "" {
		c.Download.YtDlpBinary = defaultYtDlpBinary
	}
	c.Download.FFmpegBinary = strings.TrimSpace(c.Download.FFmpegBinary)
	if c.Download.FFmpegBinary == "" {
		c.Download.FFmpegBinary = defaultFFmpegBinary
	}
	c.Download.FFprobeBinary = strings.TrimSpace(c.Download.FFprobeBinary)
	if c.Download.FFprobeBinary == "" {
		c.Download.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeEvents() {
	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	if c.Events.NATSURL == "" {
		c.Events.NATSURL = firstEnv("LECTUREBOOK_NATS_URL")
	}
	c.Events.SubjectPrefix = strings.Trim(strings.TrimSpace(c.Events.SubjectPrefix), ".")
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = defaultEventsSubjectPrefix
	}
	c.Events.NtfyTopic = strings.TrimSpace(c.Events.NtfyTopic)
	if c.Events.NtfyTopic == "" {
		c.Events.NtfyTopic = firstEnv("LECTUREBOOK_NTFY_TOPIC")
	}
	if c.Events.NtfyTimeoutSeconds <= 0 {
		c.Events.NtfyTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeWatch() error {
	if strings.TrimSpace(c.Watch.InboxDir) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Watch.InboxDir))
		if err != nil {
			return fmt.Errorf("watch.inbox_dir: %w", err)
		}
		c.Watch.InboxDir = expanded
	}
	exts := make([]string, 0, len(c.Watch.Extensions))
	for _, ext := range c.Watch.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultWatchExtensions...)
	}
	c.Watch.Extensions = exts
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
