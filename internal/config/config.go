package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the credentials in the config file.
const (
	EnvMusicAPIKey  = "SUNO_API_KEY"
	EnvSpeechAPIKey = "GEMINI_API_KEY"
)

// Config represents the complete service configuration
type Config struct {
	Music   MusicConfig   `yaml:"music"`
	Speech  SpeechConfig  `yaml:"speech"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Logging LoggingConfig `yaml:"logging"`
}

// MusicConfig contains music generation API and polling configuration
type MusicConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	Style            string `yaml:"style"`
	Instrumental     bool   `yaml:"instrumental"`
	CallbackURL      string `yaml:"callback_url"`
	RequestTimeout   int    `yaml:"request_timeout"` // seconds
	InitialDelay     int    `yaml:"initial_delay"`   // seconds
	MaxAttempts      int    `yaml:"max_attempts"`
	PollInterval     int    `yaml:"poll_interval"`    // seconds
	DownloadTimeout  int    `yaml:"download_timeout"` // seconds
	DownloadParallel int    `yaml:"download_parallel"`
	OutputDir        string `yaml:"output_dir"`
}

// SpeechConfig contains text-to-speech configuration
type SpeechConfig struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	Timeout      int    `yaml:"timeout"` // seconds
	MaxRetries   int    `yaml:"max_retries"`
	RetryBackoff int    `yaml:"retry_backoff"` // milliseconds, doubled after each retry
	OutputDir    string `yaml:"output_dir"`
}

// StorageConfig contains the optional S3 mirror for generated artifacts
type StorageConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port           int      `yaml:"port"`
	Address        string   `yaml:"address"`
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// JobsConfig contains song job registry configuration
type JobsConfig struct {
	Retention int `yaml:"retention"` // seconds a finished job stays queryable
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that works without a config file.
func Default() *Config {
	return &Config{
		Music: MusicConfig{
			BaseURL:          "https://apibox.erweima.ai/api/v1",
			Model:            "V3_5",
			Style:            "emotional, healing song with feeling",
			CallbackURL:      "https://webhook.site/",
			RequestTimeout:   30,
			InitialDelay:     2,
			MaxAttempts:      60,
			PollInterval:     10,
			DownloadTimeout:  120,
			DownloadParallel: 2,
			OutputDir:        "music_outputs",
		},
		Speech: SpeechConfig{
			Endpoint:     "https://generativelanguage.googleapis.com/v1beta",
			Model:        "gemini-2.5-flash-preview-tts",
			Voice:        "Zephyr",
			Timeout:      60,
			MaxRetries:   2,
			RetryBackoff: 1000,
			OutputDir:    "audio_outputs",
		},
		HTTP: HTTPConfig{
			Port:           8080,
			Address:        "0.0.0.0",
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
		Jobs: JobsConfig{
			Retention: 3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults. A missing file is not an
// error. Credentials from the environment take precedence over the file.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays credentials found through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvMusicAPIKey)); v != "" {
		c.Music.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvSpeechAPIKey)); v != "" {
		c.Speech.APIKey = v
	}
}

// Validate performs comprehensive validation of the configuration.
// Missing API keys are allowed here; they are reported when first used.
func (c *Config) Validate() error {
	if err := c.Music.Validate(); err != nil {
		return fmt.Errorf("music config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates music configuration
func (m *MusicConfig) Validate() error {
	if m.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if m.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be at least 1 second, got %d", m.RequestTimeout)
	}

	if m.InitialDelay < 0 {
		return fmt.Errorf("initial_delay cannot be negative, got %d", m.InitialDelay)
	}

	if m.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", m.MaxAttempts)
	}

	if m.PollInterval < 1 {
		return fmt.Errorf("poll_interval must be at least 1 second, got %d", m.PollInterval)
	}

	if m.DownloadTimeout < 1 {
		return fmt.Errorf("download_timeout must be at least 1 second, got %d", m.DownloadTimeout)
	}

	if m.DownloadParallel < 1 {
		return fmt.Errorf("download_parallel must be at least 1, got %d", m.DownloadParallel)
	}

	if m.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	return nil
}

// Validate validates speech configuration
func (s *SpeechConfig) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", s.MaxRetries)
	}

	if s.RetryBackoff < 1 {
		return fmt.Errorf("retry_backoff must be at least 1 millisecond, got %d", s.RetryBackoff)
	}

	if s.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.S3Bucket != "" && s.S3Region == "" {
		return fmt.Errorf("s3_region is required when s3_bucket is set")
	}

	return nil
}

// Enabled reports whether artifacts are mirrored to S3.
func (s *StorageConfig) Enabled() bool {
	return s.S3Bucket != ""
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates jobs configuration
func (j *JobsConfig) Validate() error {
	if j.Retention < 1 {
		return fmt.Errorf("retention must be at least 1 second, got %d", j.Retention)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetRequestTimeoutDuration returns the per-request API timeout as a time.Duration
func (m *MusicConfig) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(m.RequestTimeout) * time.Second
}

// GetInitialDelayDuration returns the wait before the first poll as a time.Duration
func (m *MusicConfig) GetInitialDelayDuration() time.Duration {
	return time.Duration(m.InitialDelay) * time.Second
}

// GetPollIntervalDuration returns the delay between polls as a time.Duration
func (m *MusicConfig) GetPollIntervalDuration() time.Duration {
	return time.Duration(m.PollInterval) * time.Second
}

// GetDownloadTimeoutDuration returns the per-file download timeout as a time.Duration
func (m *MusicConfig) GetDownloadTimeoutDuration() time.Duration {
	return time.Duration(m.DownloadTimeout) * time.Second
}

// GetPollBudget returns the longest time a generation can be polled for
func (m *MusicConfig) GetPollBudget() time.Duration {
	return time.Duration(m.MaxAttempts) * m.GetPollIntervalDuration()
}

// GetTimeoutDuration returns the speech request timeout as a time.Duration
func (s *SpeechConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetRetryBackoffDuration returns the delay before the first speech retry as a time.Duration
func (s *SpeechConfig) GetRetryBackoffDuration() time.Duration {
	return time.Duration(s.RetryBackoff) * time.Millisecond
}

// GetRetentionDuration returns how long finished jobs are kept as a time.Duration
func (j *JobsConfig) GetRetentionDuration() time.Duration {
	return time.Duration(j.Retention) * time.Second
}
