package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petems/pacekeeper/internal/analysis"
)

const appName = "pacekeeper"

type Config struct {
	RecordingsDir  string `yaml:"recordings_dir"`
	CatalogPath    string `yaml:"catalog_path"`
	PrivacyConsent bool   `yaml:"privacy_consent"`
	// CaptureAllowed is the administrative policy switch for microphone capture
	CaptureAllowed bool   `yaml:"capture_allowed"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	// TranscriptFile is a JSON-lines stream written by an external recognizer
	TranscriptFile string `yaml:"transcript_file"`

	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	path string
}

type AudioConfig struct {
	DeviceID              string `yaml:"device_id"`
	VoiceIsolation        bool   `yaml:"voice_isolation"`
	RequireIsolationAck   bool   `yaml:"require_isolation_ack"`
	IsolationAcknowledged bool   `yaml:"isolation_acknowledged"`
	FramesPerBuffer       int    `yaml:"frames_per_buffer"`
}

// CaptureConfig durations are in seconds
type CaptureConfig struct {
	StartTimeout             float64 `yaml:"start_timeout"`
	ValidationGrace          float64 `yaml:"validation_grace"`
	ValidationLevelThreshold float64 `yaml:"validation_level_threshold"`
	MaxSegmentDuration       float64 `yaml:"max_segment_duration"` // 0 = unlimited
	StoragePollInterval      float64 `yaml:"storage_poll_interval"`
	StorageWarningThreshold  float64 `yaml:"storage_warning_threshold"`
	// DevicePollInterval paces the device and sleep watcher
	DevicePollInterval       float64 `yaml:"device_poll_interval"`
}

// AnalysisConfig durations are in seconds
type AnalysisConfig struct {
	PauseThreshold      float64  `yaml:"pause_threshold"`
	SpeechThreshold     float64  `yaml:"speech_threshold"`
	LatencyWindow       int      `yaml:"latency_window"`
	LatencyHigh         float64  `yaml:"latency_high"`
	LatencyCritical     float64  `yaml:"latency_critical"`
	UtilizationWindow   int      `yaml:"utilization_window"`
	UtilizationHigh     float64  `yaml:"utilization_high"`
	UtilizationCritical float64  `yaml:"utilization_critical"`
	CheckpointInterval  float64  `yaml:"checkpoint_interval"` // 0 = disabled
	CrutchWords         []string `yaml:"crutch_words"`
}

type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

const defaultPauseThreshold = 1.5

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		RecordingsDir:  RecordingsPath(),
		CatalogPath:    filepath.Join(dataDir(), "catalog.sqlite"),
		PrivacyConsent: false,
		CaptureAllowed: true,
		LogLevel:       "info",
		LogFile:        logPath(),
		Audio: AudioConfig{
			DeviceID:            "",
			RequireIsolationAck: true,
			FramesPerBuffer:     1024,
		},
		Capture: CaptureConfig{
			StartTimeout:             5,
			ValidationGrace:          3,
			ValidationLevelThreshold: 0.001,
			MaxSegmentDuration:       0,
			StoragePollInterval:      10,
			StorageWarningThreshold:  1800,
			DevicePollInterval:       2,
		},
		Analysis: AnalysisConfig{
			PauseThreshold:      defaultPauseThreshold,
			SpeechThreshold:     0.02,
			LatencyWindow:       50,
			LatencyHigh:         0.02,
			LatencyCritical:     0.05,
			UtilizationWindow:   50,
			UtilizationHigh:     0.5,
			UtilizationCritical: 0.8,
			CheckpointInterval:  0,
			CrutchWords:         []string{"um", "uh", "like", "you know", "so", "actually", "basically", "i mean"},
		},
	}
}

// Load reads the config at path over the defaults. An empty path uses
// DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the config back to the file it was loaded from
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file backing this config
func (c *Config) Path() string { return c.path }

// Normalize coerces out-of-range values that have an obvious meaning
func (c *Config) Normalize() {
	if c.Analysis.PauseThreshold <= 0 {
		c.Analysis.PauseThreshold = defaultPauseThreshold
	}
	c.Analysis.CrutchWords = analysis.NormalizeCrutchWords(c.Analysis.CrutchWords)
	if c.Audio.FramesPerBuffer <= 0 {
		c.Audio.FramesPerBuffer = 1024
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.RecordingsDir == "" {
		return fmt.Errorf("recordings_dir cannot be empty")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of [debug, info, warn, error], got '%s'", c.LogLevel)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}
	return nil
}

func (c *CaptureConfig) Validate() error {
	if c.StartTimeout <= 0 {
		return fmt.Errorf("start_timeout must be positive, got %f", c.StartTimeout)
	}
	if c.ValidationGrace <= 0 {
		return fmt.Errorf("validation_grace must be positive, got %f", c.ValidationGrace)
	}
	if c.ValidationLevelThreshold < 0 || c.ValidationLevelThreshold > 1 {
		return fmt.Errorf("validation_level_threshold must be between 0 and 1, got %f", c.ValidationLevelThreshold)
	}
	if c.MaxSegmentDuration < 0 {
		return fmt.Errorf("max_segment_duration cannot be negative, got %f", c.MaxSegmentDuration)
	}
	if c.StoragePollInterval <= 0 {
		return fmt.Errorf("storage_poll_interval must be positive, got %f", c.StoragePollInterval)
	}
	if c.StorageWarningThreshold < 0 {
		return fmt.Errorf("storage_warning_threshold cannot be negative, got %f", c.StorageWarningThreshold)
	}
	if c.DevicePollInterval <= 0 {
		return fmt.Errorf("device_poll_interval must be positive, got %f", c.DevicePollInterval)
	}
	return nil
}

func (a *AnalysisConfig) Validate() error {
	if a.SpeechThreshold < 0 || a.SpeechThreshold > 1 {
		return fmt.Errorf("speech_threshold must be between 0 and 1, got %f", a.SpeechThreshold)
	}
	if a.LatencyWindow < 1 {
		return fmt.Errorf("latency_window must be at least 1, got %d", a.LatencyWindow)
	}
	if a.UtilizationWindow < 1 {
		return fmt.Errorf("utilization_window must be at least 1, got %d", a.UtilizationWindow)
	}
	if a.LatencyCritical > 0 && a.LatencyCritical < a.LatencyHigh {
		return fmt.Errorf("latency_critical (%f) must not be below latency_high (%f)", a.LatencyCritical, a.LatencyHigh)
	}
	if a.UtilizationCritical > 0 && a.UtilizationCritical < a.UtilizationHigh {
		return fmt.Errorf("utilization_critical (%f) must not be below utilization_high (%f)",
			a.UtilizationCritical, a.UtilizationHigh)
	}
	if a.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval cannot be negative, got %f", a.CheckpointInterval)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *CaptureConfig) GetStartTimeout() time.Duration { return seconds(c.StartTimeout) }

func (c *CaptureConfig) GetValidationGrace() time.Duration { return seconds(c.ValidationGrace) }

func (c *CaptureConfig) GetMaxSegmentDuration() time.Duration { return seconds(c.MaxSegmentDuration) }

func (c *CaptureConfig) GetStoragePollInterval() time.Duration { return seconds(c.StoragePollInterval) }

func (c *CaptureConfig) GetDevicePollInterval() time.Duration { return seconds(c.DevicePollInterval) }

func (c *CaptureConfig) GetStorageWarningThreshold() time.Duration {
	return seconds(c.StorageWarningThreshold)
}

func (a *AnalysisConfig) GetPauseThreshold() time.Duration { return seconds(a.PauseThreshold) }

func (a *AnalysisConfig) GetLatencyHigh() time.Duration { return seconds(a.LatencyHigh) }

func (a *AnalysisConfig) GetLatencyCritical() time.Duration { return seconds(a.LatencyCritical) }

func (a *AnalysisConfig) GetCheckpointInterval() time.Duration { return seconds(a.CheckpointInterval) }

// DefaultPath returns the platform-specific config file path
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.yaml")
}

// RecordingsPath returns the platform-specific default recordings directory
func RecordingsPath() string {
	return filepath.Join(dataDir(), "recordings")
}

func dataDir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName)
}

func logPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, appName, appName+".log")
}
