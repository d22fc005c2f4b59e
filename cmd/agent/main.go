// Command agent is the voice-first computer-use agent entry point. With
// --voice it runs the full voice loop; without it, a text REPL drives the
// same two-model pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/vox-cua/agent/internal/agenterr"
	"github.com/vox-cua/agent/internal/config"
	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/internal/narration"
	"github.com/vox-cua/agent/internal/pipeline"
	"github.com/vox-cua/agent/internal/resilience"
	"github.com/vox-cua/agent/internal/speculative"
	"github.com/vox-cua/agent/internal/telemetry"
	"github.com/vox-cua/agent/internal/voice"
	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/provider/stt"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	voiceMode := flag.Bool("voice", false, "run the voice loop instead of the text REPL")
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	if err := config.LoadDotenv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return 1
	}

	// ── Load configuration ─────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return 1
	}
	applyEnvOverrides(cfg)

	// ── Logger: stderr + rotated session file ─────────────────────────────────
	start := time.Now()
	logger, closeLogs, err := newLogger(cfg.Log.Level, start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return 1
	}
	defer closeLogs()
	slog.SetDefault(logger)

	slog.Info("agent starting",
		"config", *configPath,
		"voice", *voiceMode,
		"inference_provider", cfg.Inference.Provider,
		"speculative", cfg.Speculative.Enabled,
		"on_device_stt", cfg.STT.UseOnDevice,
	)

	// ── Provider registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	config.RegisterBuiltins(reg)

	executor, planner, err := buildLLMProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build inference providers", "err", err)
		return 1
	}

	drivers := defaultDrivers()

	sttProvider, err := buildSTTProvider(cfg, reg, drivers.Audio)
	if err != nil {
		slog.Error("failed to build STT provider", "err", err)
		return 1
	}

	// ── Telemetry ──────────────────────────────────────────────────────────────
	mp, err := telemetry.InitMeterProvider(telemetry.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer mp.Shutdown(context.Background())
	tracker, err := telemetry.NewTracker(mp)
	if err != nil {
		slog.Error("failed to create perf tracker", "err", err)
		return 1
	}

	// ── Signal context ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup readiness ──────────────────────────────────────────────────────
	// Microphone and speech permissions are requested unconditionally so a
	// mid-session STT fallback is silent (spec.md §4.6).
	checks := config.RunChecks(ctx, []config.Checker{
		{Name: "inference", Check: func(cctx context.Context) error {
			_, err := executor.CountTokens(nil)
			return err
		}},
		{Name: "stt", Check: func(cctx context.Context) error {
			ready, err := sttProvider.Setup(cctx)
			if err != nil {
				return err
			}
			if !ready && *voiceMode {
				return fmt.Errorf("%w: microphone or speech recognition unavailable", agenterr.ErrPermissionDenied)
			}
			return nil
		}},
	})
	for _, r := range checks {
		if r.Err != nil {
			slog.Warn("startup check failed", "check", r.Name, "err", r.Err)
		}
	}
	if *voiceMode && !config.AllOK(checks) {
		fmt.Fprintln(os.Stderr, "agent: microphone or speech permission denied — enable microphone and speech recognition access for this app in system privacy settings")
		return 1
	}

	printStartupSummary(cfg, *voiceMode)

	// ── Core wiring ────────────────────────────────────────────────────────────
	queue := narration.New(drivers.TTS)

	maximizer := desktop.NewIdempotentMaximizer(drivers.Sink)
	if cfg.Desktop.DisableMaximize {
		maximizer.Disable()
	}

	deps := pipeline.Dependencies{
		Executor:      executor,
		Screen:        drivers.Screen,
		Sink:          drivers.Sink,
		Maximizer:     maximizer,
		Narration:     queue,
		Overlay:       drivers.Overlay,
		Tools:         pipeline.Tools(),
		SystemPrompt:  pipeline.ExecutorSystemPrompt,
		MaxModelWidth: cfg.Desktop.MaxModelWidth,
	}

	memory, err := voice.NewMemory(memoryPath())
	if err != nil {
		slog.Error("failed to load memory store", "err", err)
		return 1
	}

	if !*voiceMode {
		return runREPL(ctx, deps, pipeline.NewPlanner(planner))
	}

	loop := &voice.Loop{
		STT:                sttProvider,
		Narration:          queue,
		Dispatcher:         speculative.New(),
		Deps:               deps,
		Planner:            pipeline.NewPlanner(planner),
		Interpreter:        executor,
		Bridge:             voice.NewClarificationBridge(),
		Session:            voice.NewSessionContext(),
		Memory:             memory,
		Perf:               tracker,
		SpeculativeEnabled: cfg.Speculative.Enabled,
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("voice loop error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyEnvOverrides folds the three documented environment toggles
// (spec.md §6) over the YAML configuration.
func applyEnvOverrides(cfg *config.Config) {
	if v := strings.TrimSpace(os.Getenv("INFERENCE_API_KEY")); v != "" && cfg.Inference.APIKey == "" {
		cfg.Inference.APIKey = v
	}
	if os.Getenv("USE_SPECULATIVE") == "1" {
		cfg.Speculative.Enabled = true
	}
	if os.Getenv("USE_ON_DEVICE_STT") == "1" {
		cfg.STT.UseOnDevice = true
	}
}

// demoAPIKey is the bundled fallback credential used when no key is
// configured (spec.md §6).
const demoAPIKey = "demo-key"

// buildLLMProviders creates the executor and planner providers. The planner
// reuses the executor unless a distinct planner model is configured. The
// executor is wrapped in a circuit-breaking fallback group so a flapping
// backend degrades instead of erroring every call.
func buildLLMProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, llm.Provider, error) {
	inf := cfg.Inference
	if inf.APIKey == "" {
		inf.APIKey = demoAPIKey
	}

	primary, err := reg.CreateLLM(inf)
	if err != nil {
		return nil, nil, err
	}
	executor := resilience.NewLLMFallback(primary, inf.Provider, resilience.FallbackConfig{})

	if inf.PlannerModel == "" || inf.PlannerModel == inf.Model {
		return executor, executor, nil
	}
	plannerCfg := inf
	plannerCfg.Model = inf.PlannerModel
	plannerModel, err := reg.CreateLLM(plannerCfg)
	if err != nil {
		return nil, nil, err
	}
	return executor, resilience.NewLLMFallback(plannerModel, inf.Provider+"/planner", resilience.FallbackConfig{}), nil
}

// buildSTTProvider selects the speech backend: on-device with cloud
// fallback when USE_ON_DEVICE_STT is set, cloud alone otherwise (spec.md
// §4.6).
func buildSTTProvider(cfg *config.Config, reg *config.Registry, audio stt.AudioSource) (stt.Provider, error) {
	cloud, err := reg.CreateSTT("cloudws", audio)
	if err != nil {
		return nil, err
	}
	if !cfg.STT.UseOnDevice {
		return cloud, nil
	}

	onDevice, err := reg.CreateSTT("ondevice", audio)
	if err != nil {
		slog.Warn("on-device STT unavailable, using cloud recognizer", "err", err)
		return cloud, nil
	}
	group := resilience.NewSTTFallback(onDevice, "ondevice", resilience.FallbackConfig{})
	group.AddFallback("cloudws", cloud)
	return group, nil
}

// newLogger builds the dual stderr + session-file logger and rotates old
// session logs (spec.md §6 persisted state).
func newLogger(level config.LogLevel, start time.Time) (*slog.Logger, func(), error) {
	slogLevel := slog.LevelInfo
	switch level {
	case config.LogDebug:
		slogLevel = slog.LevelDebug
	case config.LogWarn:
		slogLevel = slog.LevelWarn
	case config.LogError:
		slogLevel = slog.LevelError
	}

	if err := telemetry.RotateSessionLogs(telemetry.SessionLogDir); err != nil {
		slog.Warn("session log rotation failed", "err", err)
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	fileHandler, err := telemetry.NewSessionFileHandler(telemetry.SessionLogDir, start, slogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(telemetry.NewFanOut(stderrHandler, fileHandler))
	return logger, func() { _ = fileHandler.Close() }, nil
}

// memoryPath resolves ~/.cua/memory.json, falling back to the working
// directory when the home directory is unknown.
func memoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return voice.DefaultMemoryPath
	}
	return filepath.Join(home, ".cua", "memory.json")
}

func printStartupSummary(cfg *config.Config, voiceMode bool) {
	mode := "text REPL"
	if voiceMode {
		mode = "voice"
	}
	sttBackend := "cloudws"
	if cfg.STT.UseOnDevice {
		sttBackend = "ondevice (cloudws fallback)"
	}
	fmt.Fprintf(os.Stderr, `
agent ready
  mode:        %s
  inference:   %s (%s)
  stt:         %s
  speculative: %t
  model width: %d px
`, mode, cfg.Inference.Provider, cfg.Inference.Model, sttBackend, cfg.Speculative.Enabled, cfg.Desktop.MaxModelWidth)
}
