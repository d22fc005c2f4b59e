package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/vox-cua/agent/internal/desktop"
)

// ValidProviderNames lists known provider names, used by Validate to warn
// about unrecognised names rather than reject the config outright (the
// teacher's same "warn, don't fail" posture for unknown provider strings).
var ValidProviderNames = []string{"claude", "openai", "anyllm:anthropic", "anyllm:openai", "anyllm:ollama"}

// ValidSTTBackendNames lists the two STT backend names the Registry knows.
var ValidSTTBackendNames = []string{"cloudws", "ondevice"}

// Load reads the YAML configuration file at path and returns a validated
// Config. A missing file is not an error: Load falls back to a zero Config,
// since every field has a usable default applied by Validate / the
// registry's environment fallback.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg, Validate(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Desktop.MaxModelWidth == 0 {
		cfg.Desktop.MaxModelWidth = desktop.DefaultMaxModelWidth
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}
	if cfg.Inference.Provider == "" {
		cfg.Inference.Provider = "claude"
	}
}

// Validate checks that cfg contains a coherent set of values, returning a
// joined error for all failures found. Unknown (but non-empty) provider
// names are logged as warnings, not rejected, in case a caller registered a
// custom factory under a name not in ValidProviderNames.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	if cfg.Inference.Provider != "" && !slices.Contains(ValidProviderNames, cfg.Inference.Provider) {
		slog.Warn("unknown inference provider name — may be a typo or a custom registration",
			"name", cfg.Inference.Provider, "known", ValidProviderNames)
	}

	if cfg.Desktop.MaxModelWidth < 0 {
		errs = append(errs, fmt.Errorf("desktop.max_model_width must be >= 0, got %d", cfg.Desktop.MaxModelWidth))
	}

	return errors.Join(errs...)
}
