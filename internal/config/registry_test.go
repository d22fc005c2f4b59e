package config

import (
	"errors"
	"testing"

	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/provider/llm/mock"
	"github.com/vox-cua/agent/pkg/provider/stt"
	sttmock "github.com/vox-cua/agent/pkg/provider/stt/mock"
)

func TestRegistry_CreateLLM_NotRegistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateLLM(InferenceConfig{Provider: "nonexistent"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateLLM_UsesRegisteredFactory(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterLLM("stub", func(cfg InferenceConfig) (llm.Provider, error) {
		return &mock.Provider{}, nil
	})
	p, err := reg.CreateLLM(InferenceConfig{Provider: "stub"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestRegistry_CreateSTT_NotRegistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateSTT("nonexistent", nil)
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateSTT_UsesRegisteredFactory(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterSTT("stub", func(audio stt.AudioSource) (stt.Provider, error) {
		return &sttmock.Provider{SetupReady: true}, nil
	})
	p, err := reg.CreateSTT("stub", nil)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}
