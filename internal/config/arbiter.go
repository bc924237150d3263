package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gesture.arbiter/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical arbiter defaults file.
const DefaultConfigPath = "config/arbiter.defaults.json"

// ArbiterConfig is the root configuration for the arbitration daemon.
// Every field is optional; the Get* accessors fall back to compiled defaults
// so partial files are safe.
type ArbiterConfig struct {
	// Arbitration thresholds
	CommonPassThreshold     *float64 `json:"common_pass_threshold,omitempty"`
	SmartTrainPassThreshold *float64 `json:"smart_train_pass_threshold,omitempty"`
	PredefinedPassScore     *float64 `json:"predefined_pass_score,omitempty"`
	MinSmartTrainSamples    *int     `json:"min_smart_train_samples,omitempty"`

	// Capture
	CacheSize       *int    `json:"cache_size,omitempty"`
	CaptureInterval *string `json:"capture_interval,omitempty"` // duration string like "16ms"

	// Engine calls have no bound of their own; this caps the wait.
	RecognizerTimeout *string `json:"recognizer_timeout,omitempty"`

	// Training recovery
	TrainFailResetCount   *int     `json:"train_fail_reset_count,omitempty"`
	SecurityWeakThreshold *int     `json:"security_weak_threshold,omitempty"`
	MistouchEntries       *int     `json:"mistouch_entries,omitempty"`
	TrainSizeRatio        *float64 `json:"train_size_ratio,omitempty"`

	DebugLog *bool   `json:"debug_log,omitempty"`
	StateDir *string `json:"state_dir,omitempty"`

	Serial *serialmux.PortOptions `json:"serial,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyArbiterConfig returns an ArbiterConfig with all fields unset.
func EmptyArbiterConfig() *ArbiterConfig {
	return &ArbiterConfig{}
}

// LoadArbiterConfig loads an ArbiterConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadArbiterConfig(path string) (*ArbiterConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyArbiterConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *ArbiterConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/gesture/<pkg>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadArbiterConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ArbiterConfig) Validate() error {
	for name, v := range map[string]*float64{
		"common_pass_threshold":      c.CommonPassThreshold,
		"smart_train_pass_threshold": c.SmartTrainPassThreshold,
		"train_size_ratio":           c.TrainSizeRatio,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.PredefinedPassScore != nil && *c.PredefinedPassScore < 0 {
		return fmt.Errorf("predefined_pass_score must be non-negative, got %f", *c.PredefinedPassScore)
	}

	if c.CacheSize != nil && *c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", *c.CacheSize)
	}
	if c.MinSmartTrainSamples != nil && *c.MinSmartTrainSamples <= 0 {
		return fmt.Errorf("min_smart_train_samples must be positive, got %d", *c.MinSmartTrainSamples)
	}
	if c.TrainFailResetCount != nil && *c.TrainFailResetCount <= 0 {
		return fmt.Errorf("train_fail_reset_count must be positive, got %d", *c.TrainFailResetCount)
	}
	if c.SecurityWeakThreshold != nil && *c.SecurityWeakThreshold < 0 {
		return fmt.Errorf("security_weak_threshold must be non-negative, got %d", *c.SecurityWeakThreshold)
	}
	if c.MistouchEntries != nil && *c.MistouchEntries < 0 {
		return fmt.Errorf("mistouch_entries must be non-negative, got %d", *c.MistouchEntries)
	}

	for name, v := range map[string]*string{
		"capture_interval":   c.CaptureInterval,
		"recognizer_timeout": c.RecognizerTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetCommonPassThreshold returns the indexed common-gesture pass score.
func (c *ArbiterConfig) GetCommonPassThreshold() float64 {
	if c.CommonPassThreshold == nil {
		return 0.9
	}
	return *c.CommonPassThreshold
}

// GetSmartTrainPassThreshold returns the score later smart-train samples must beat.
func (c *ArbiterConfig) GetSmartTrainPassThreshold() float64 {
	if c.SmartTrainPassThreshold == nil {
		return 0.8
	}
	return *c.SmartTrainPassThreshold
}

// GetPredefinedPassScore returns the developer-defined confidence a match must exceed.
func (c *ArbiterConfig) GetPredefinedPassScore() float64 {
	if c.PredefinedPassScore == nil {
		return 1.0
	}
	return *c.PredefinedPassScore
}

// GetMinSmartTrainSamples returns how many exemplars a smart-train drain needs.
func (c *ArbiterConfig) GetMinSmartTrainSamples() int {
	if c.MinSmartTrainSamples == nil {
		return 3
	}
	return *c.MinSmartTrainSamples
}

// GetCacheSize returns the sample cache capacity.
func (c *ArbiterConfig) GetCacheSize() int {
	if c.CacheSize == nil {
		return 10
	}
	return *c.CacheSize
}

// GetCaptureInterval returns the motion sampling tick.
func (c *ArbiterConfig) GetCaptureInterval() time.Duration {
	return durationOr(c.CaptureInterval, 16*time.Millisecond)
}

// GetRecognizerTimeout returns the bounded wait applied to engine calls.
func (c *ArbiterConfig) GetRecognizerTimeout() time.Duration {
	return durationOr(c.RecognizerTimeout, 2*time.Second)
}

// GetTrainFailResetCount returns the consecutive failures that trigger a reset.
func (c *ArbiterConfig) GetTrainFailResetCount() int {
	if c.TrainFailResetCount == nil {
		return 3
	}
	return *c.TrainFailResetCount
}

// GetSecurityWeakThreshold returns the too-weak count above which a
// signature is flagged as weak.
func (c *ArbiterConfig) GetSecurityWeakThreshold() int {
	if c.SecurityWeakThreshold == nil {
		return 2
	}
	return *c.SecurityWeakThreshold
}

// GetMistouchEntries returns the entry count at or below which a training
// sample is treated as a mistouch.
func (c *ArbiterConfig) GetMistouchEntries() int {
	if c.MistouchEntries == nil {
		return 30
	}
	return *c.MistouchEntries
}

// GetTrainSizeRatio returns the minimum size of a follow-up training sample
// relative to the first one.
func (c *ArbiterConfig) GetTrainSizeRatio() float64 {
	if c.TrainSizeRatio == nil {
		return 0.65
	}
	return *c.TrainSizeRatio
}

// GetDebugLog reports whether per-sample debug logging is on.
func (c *ArbiterConfig) GetDebugLog() bool {
	if c.DebugLog == nil {
		return false
	}
	return *c.DebugLog
}

// GetStateDir returns the directory persisted state files live in.
func (c *ArbiterConfig) GetStateDir() string {
	if c.StateDir == nil || *c.StateDir == "" {
		return "data"
	}
	return *c.StateDir
}

// GetSerial returns the serial options, normalised, or the IMU defaults.
func (c *ArbiterConfig) GetSerial() serialmux.PortOptions {
	opts := serialmux.PortOptions{BaudRate: 115200}
	if c.Serial != nil {
		opts = *c.Serial
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return serialmux.PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	}
	return normalized
}
