package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbiter.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyConfig_Defaults(t *testing.T) {
	cfg := EmptyArbiterConfig()

	if got := cfg.GetCommonPassThreshold(); got != 0.9 {
		t.Errorf("GetCommonPassThreshold() = %v, want 0.9", got)
	}
	if got := cfg.GetSmartTrainPassThreshold(); got != 0.8 {
		t.Errorf("GetSmartTrainPassThreshold() = %v, want 0.8", got)
	}
	if got := cfg.GetPredefinedPassScore(); got != 1.0 {
		t.Errorf("GetPredefinedPassScore() = %v, want 1.0", got)
	}
	if got := cfg.GetCacheSize(); got != 10 {
		t.Errorf("GetCacheSize() = %d, want 10", got)
	}
	if got := cfg.GetCaptureInterval(); got != 16*time.Millisecond {
		t.Errorf("GetCaptureInterval() = %v, want 16ms", got)
	}
	if got := cfg.GetRecognizerTimeout(); got != 2*time.Second {
		t.Errorf("GetRecognizerTimeout() = %v, want 2s", got)
	}
	if got := cfg.GetMinSmartTrainSamples(); got != 3 {
		t.Errorf("GetMinSmartTrainSamples() = %d, want 3", got)
	}
	if got := cfg.GetTrainFailResetCount(); got != 3 {
		t.Errorf("GetTrainFailResetCount() = %d, want 3", got)
	}
	if got := cfg.GetSecurityWeakThreshold(); got != 2 {
		t.Errorf("GetSecurityWeakThreshold() = %d, want 2", got)
	}
	if got := cfg.GetMistouchEntries(); got != 30 {
		t.Errorf("GetMistouchEntries() = %d, want 30", got)
	}
	if got := cfg.GetTrainSizeRatio(); got != 0.65 {
		t.Errorf("GetTrainSizeRatio() = %v, want 0.65", got)
	}
	if cfg.GetDebugLog() {
		t.Error("GetDebugLog() = true, want false")
	}
	if got := cfg.GetStateDir(); got != "data" {
		t.Errorf("GetStateDir() = %q, want data", got)
	}
	serial := cfg.GetSerial()
	if serial.BaudRate != 115200 || serial.Parity != "N" || serial.DataBits != 8 {
		t.Errorf("GetSerial() = %+v, want 115200 8N1", serial)
	}
}

func TestLoadArbiterConfig_Partial(t *testing.T) {
	path := writeConfig(t, `{"cache_size": 4, "capture_interval": "20ms"}`)

	cfg, err := LoadArbiterConfig(path)
	if err != nil {
		t.Fatalf("LoadArbiterConfig: %v", err)
	}
	if got := cfg.GetCacheSize(); got != 4 {
		t.Errorf("GetCacheSize() = %d, want 4", got)
	}
	if got := cfg.GetCaptureInterval(); got != 20*time.Millisecond {
		t.Errorf("GetCaptureInterval() = %v, want 20ms", got)
	}
	// untouched keys keep defaults
	if got := cfg.GetCommonPassThreshold(); got != 0.9 {
		t.Errorf("GetCommonPassThreshold() = %v, want 0.9", got)
	}
}

func TestLoadArbiterConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold above one", `{"common_pass_threshold": 1.5}`},
		{"negative ratio", `{"train_size_ratio": -0.1}`},
		{"zero cache", `{"cache_size": 0}`},
		{"bad duration", `{"capture_interval": "soon"}`},
		{"negative duration", `{"recognizer_timeout": "-1s"}`},
		{"bad parity", `{"serial": {"parity": "X"}}`},
		{"malformed json", `{"cache_size": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadArbiterConfig(writeConfig(t, tt.body)); err == nil {
				t.Errorf("expected error for %s", tt.body)
			}
		})
	}
}

func TestLoadArbiterConfig_RejectsExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbiter.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArbiterConfig(path); err == nil {
		t.Error("expected extension error")
	}
}

func TestLoadArbiterConfig_Missing(t *testing.T) {
	if _, err := LoadArbiterConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.CommonPassThreshold == nil || *cfg.CommonPassThreshold != 0.9 {
		t.Errorf("defaults file common_pass_threshold = %v, want 0.9", cfg.CommonPassThreshold)
	}
	if got := cfg.GetSerial().BaudRate; got != 115200 {
		t.Errorf("defaults file baud = %d, want 115200", got)
	}
}
