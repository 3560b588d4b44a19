package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateVerification(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ItemConcurrency <= 0 {
		return errors.New("pipeline.item_concurrency must be positive")
	}
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return errors.New("pipeline.stage_timeout_seconds must be positive")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return errors.New("jobs.max_concurrent must be positive")
	}
	return nil
}

func (c *Config) validateChunking() error {
	ch := c.Chunking
	if ch.MinSize <= 0 {
		return errors.New("chunking.min_size must be positive")
	}
	if ch.MaxSize <= 0 {
		return errors.New("chunking.max_size must be positive")
	}
	if ch.MinSize > ch.MaxSize {
		return fmt.Errorf("chunking.min_size (%d) must not exceed chunking.max_size (%d)", ch.MinSize, ch.MaxSize)
	}
	if ch.ActivationThreshold <= 0 {
		return errors.New("chunking.activation_threshold must be positive")
	}
	if ch.ActivationThreshold > ch.MaxSize {
		return fmt.Errorf("chunking.activation_threshold (%d) must not exceed chunking.max_size (%d)", ch.ActivationThreshold, ch.MaxSize)
	}
	if ch.GapThresholdSeconds < 0 {
		return errors.New("chunking.gap_threshold_seconds must be non-negative")
	}
	if ch.GapWeight < 0 || ch.SpeakerChangeWeight < 0 || ch.ReferenceBoundaryWeight < 0 {
		return errors.New("chunking weights must be non-negative")
	}
	return nil
}

func (c *Config) validateVerification() error {
	v := c.Verification
	if v.RequestDelayMS < 0 {
		return errors.New("verification.request_delay_ms must be non-negative")
	}
	if v.MaxAttempts <= 0 {
		return errors.New("verification.max_attempts must be positive")
	}
	if v.InitialBackoffMS < 0 || v.MaxBackoffMS < 0 {
		return errors.New("verification backoff values must be non-negative")
	}
	if v.MaxBackoffMS > 0 && v.InitialBackoffMS > v.MaxBackoffMS {
		return errors.New("verification.initial_backoff_ms must not exceed verification.max_backoff_ms")
	}
	if v.HTTPTimeoutSeconds <= 0 {
		return errors.New("verification.http_timeout_seconds must be positive")
	}
	if v.FuzzyMinScore < 0 || v.FuzzyMinScore > 1 {
		return errors.New("verification.fuzzy_min_score must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "openrouter", "gemini":
	default:
		return fmt.Errorf("llm.provider %q is not supported (use openrouter or gemini)", c.LLM.Provider)
	}
	return nil
}

func (c *Config) validateValidation() error {
	v := c.Validation
	if v.RepetitionWindow <= 0 {
		return errors.New("validation.repetition_window must be positive")
	}
	if v.RepetitionThreshold < 2 {
		return errors.New("validation.repetition_threshold must be at least 2")
	}
	if v.MinConfidence < 0 || v.MinConfidence > 1 {
		return errors.New("validation.min_confidence must be between 0 and 1")
	}
	if v.MinVerificationRate < 0 || v.MinVerificationRate > 1 {
		return errors.New("validation.min_verification_rate must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

// RequireLLM reports a configuration error when enrichment needs a model but no key is set.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	envName := "OPENROUTER_API_KEY"
	if c.LLM.Provider == "gemini" {
		envName = "GEMINI_API_KEY"
	}
	return fmt.Errorf("llm.api_key is required. Set %s env var or edit %s (create with 'lecturebook config init')", envName, defaultPath)
}
