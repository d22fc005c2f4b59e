// Package config provides the configuration schema, YAML loader, .env
// overlay, and provider registry for the voice-first computer-use agent.
// Grounded on the teacher's internal/config package, scoped down from its
// multi-NPC Discord-bot schema to the single-operator surface spec.md §6
// names: the inference backend, the two STT backends, the speculative
// dispatcher toggle, and the desktop coordinate/maximize options.
package config

import "time"

// LogLevel controls log verbosity, mirroring the teacher's config.LogLevel.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the agent, typically
// loaded from a YAML file via Load.
type Config struct {
	Inference   InferenceConfig   `yaml:"inference"`
	Speculative SpeculativeConfig `yaml:"speculative"`
	STT         STTConfig         `yaml:"stt"`
	Desktop     DesktopConfig     `yaml:"desktop"`
	Log         LogConfig         `yaml:"log"`
}

// InferenceConfig selects and authenticates the LLM backend shared by the
// fast executor and the planner (spec.md §6 inference backend contract).
type InferenceConfig struct {
	// Provider selects a factory registered in the Registry: "claude",
	// "openai", or "anyllm:<backend>" (e.g. "anyllm:anthropic").
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider. If empty, INFERENCE_API_KEY
	// (or a bundled demo key) is used — see applyEnvOverrides and
	// buildLLMProviders in cmd/agent/main.go.
	APIKey string `yaml:"api_key"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// PlannerModel optionally selects a distinct model for the planner role.
	// When empty, Model is reused for both roles.
	PlannerModel string `yaml:"planner_model"`

	// RequestTimeout bounds a single completion call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SpeculativeConfig controls the speculative dispatcher (spec.md §4.2).
type SpeculativeConfig struct {
	// Enabled mirrors the USE_SPECULATIVE=1 environment toggle (spec.md §6).
	// The dispatcher may still auto-disable itself at runtime regardless of
	// this setting.
	Enabled bool `yaml:"enabled"`
}

// STTConfig selects the speech-to-text backend (spec.md §4.6).
type STTConfig struct {
	// UseOnDevice mirrors USE_ON_DEVICE_STT=1: prefer the on-device backend,
	// falling back to the cloud backend on setup failure.
	UseOnDevice bool `yaml:"use_on_device"`
}

// DesktopConfig configures the coordinate system and the maximize-on-first-
// batch side effect (spec.md §4.7, §9 open question).
type DesktopConfig struct {
	// MaxModelWidth caps the bitmap width reported to the model. Defaults to
	// desktop.DefaultMaxModelWidth when zero.
	MaxModelWidth int `yaml:"max_model_width"`

	// DisableMaximize opts out of the idempotent foreground-window maximize
	// the executor performs after its first successful action batch.
	DisableMaximize bool `yaml:"disable_maximize"`
}

// LogConfig configures the dual stderr/session-file logging setup (spec.md
// §6 persisted state).
type LogConfig struct {
	Level LogLevel `yaml:"level"`
}
