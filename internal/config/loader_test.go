package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Desktop.MaxModelWidth != 1024 {
		t.Errorf("MaxModelWidth = %d, want 1024", cfg.Desktop.MaxModelWidth)
	}
	if cfg.Log.Level != LogInfo {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, LogInfo)
	}
	if cfg.Inference.Provider != "claude" {
		t.Errorf("Inference.Provider = %q, want claude", cfg.Inference.Provider)
	}
}

func TestLoadFromReader_ParsesFields(t *testing.T) {
	yamlDoc := `
inference:
  provider: openai
  api_key: sk-test
  model: gpt-5
speculative:
  enabled: true
stt:
  use_on_device: true
desktop:
  max_model_width: 800
  disable_maximize: true
log:
  level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Inference.Provider != "openai" || cfg.Inference.Model != "gpt-5" {
		t.Errorf("inference = %+v", cfg.Inference)
	}
	if !cfg.Speculative.Enabled {
		t.Error("speculative.enabled not parsed")
	}
	if !cfg.STT.UseOnDevice {
		t.Error("stt.use_on_device not parsed")
	}
	if cfg.Desktop.MaxModelWidth != 800 || !cfg.Desktop.DisableMaximize {
		t.Errorf("desktop = %+v", cfg.Desktop)
	}
	if cfg.Log.Level != LogDebug {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_top_level: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "verbose"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_RejectsNegativeMaxModelWidth(t *testing.T) {
	cfg := &Config{Desktop: DesktopConfig{MaxModelWidth: -1}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative max_model_width")
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/to/config.yaml")
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if cfg.Desktop.MaxModelWidth != 1024 {
		t.Errorf("MaxModelWidth = %d, want 1024", cfg.Desktop.MaxModelWidth)
	}
}
