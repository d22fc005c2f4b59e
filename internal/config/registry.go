package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/provider/llm/anyllm"
	"github.com/vox-cua/agent/pkg/provider/llm/claude"
	"github.com/vox-cua/agent/pkg/provider/llm/openai"
	"github.com/vox-cua/agent/pkg/provider/stt"
	"github.com/vox-cua/agent/pkg/provider/stt/cloudws"
	"github.com/vox-cua/agent/pkg/provider/stt/ondevice"
)

// ErrProviderNotRegistered is returned by Registry.CreateLLM/CreateSTT when
// no factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions, grounded on
// the teacher's config.Registry, scoped to the two provider kinds this spec
// names: LLM (executor + planner) and STT (cloud/on-device).
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(InferenceConfig) (llm.Provider, error)
	stt map[string]func(stt.AudioSource) (stt.Provider, error)
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(InferenceConfig) (llm.Provider, error)),
		stt: make(map[string]func(stt.AudioSource) (stt.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(InferenceConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(stt.AudioSource) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// cfg.Provider.
func (r *Registry) CreateLLM(cfg InferenceConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateSTT instantiates an STT provider using the factory registered under
// name, wiring it against audio.
func (r *Registry) CreateSTT(name string, audio stt.AudioSource) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, name)
	}
	return factory(audio)
}

// RegisterBuiltins wires the agent's built-in LLM and STT factories into reg.
func RegisterBuiltins(reg *Registry) {
	reg.RegisterLLM("claude", func(cfg InferenceConfig) (llm.Provider, error) {
		var opts []claude.Option
		if cfg.BaseURL != "" {
			opts = append(opts, claude.WithBaseURL(cfg.BaseURL))
		}
		if cfg.RequestTimeout > 0 {
			opts = append(opts, claude.WithTimeout(cfg.RequestTimeout))
		}
		return claude.New(cfg.APIKey, cfg.Model, opts...)
	})

	reg.RegisterLLM("openai", func(cfg InferenceConfig) (llm.Provider, error) {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	})

	for _, backend := range []string{"anthropic", "openai", "ollama"} {
		backend := backend
		reg.RegisterLLM("anyllm:"+backend, func(cfg InferenceConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			return anyllm.New(backend, cfg.Model, opts...)
		})
	}

	reg.RegisterSTT("cloudws", func(audio stt.AudioSource) (stt.Provider, error) {
		apiKey := envOr("INFERENCE_API_KEY", "demo-key")
		return cloudws.New(apiKey, audio)
	})

	reg.RegisterSTT("ondevice", func(audio stt.AudioSource) (stt.Provider, error) {
		return ondevice.New("", audio)
	})
}

// envOr returns the environment variable named key if set and non-blank,
// otherwise fallback. Used for the bundled-demo-key fallback (spec.md §6).
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
