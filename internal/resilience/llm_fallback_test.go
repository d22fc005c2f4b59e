package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/vox-cua/agent/pkg/provider/llm"
	llmmock "github.com/vox-cua/agent/pkg/provider/llm/mock"
	"github.com/vox-cua/agent/pkg/types"
)

func newLLMChain(primary, fallback *llmmock.Provider) *LLMFallback {
	fb := NewLLMFallback(primary, "claude", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	if fallback != nil {
		fb.AddFallback("anyllm", fallback)
	}
	return fb
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Run("preferred backend answers", func(t *testing.T) {
		primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from claude"}}
		secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from anyllm"}}
		fb := newLLMChain(primary, secondary)

		resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "from claude" {
			t.Fatalf("content = %q", resp.Content)
		}
		if len(secondary.CompleteCalls) != 0 {
			t.Fatalf("fallback called %d times while primary healthy", len(secondary.CompleteCalls))
		}
	})

	t.Run("failover", func(t *testing.T) {
		primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
		secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from anyllm"}}
		fb := newLLMChain(primary, secondary)

		resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "from anyllm" {
			t.Fatalf("content = %q", resp.Content)
		}
	})

	t.Run("whole chain down", func(t *testing.T) {
		primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
		secondary := &llmmock.Provider{CompleteErr: errors.New("secondary down")}
		fb := newLLMChain(primary, secondary)

		_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
	})
}

func TestLLMFallback_StreamCompletion_Failover(t *testing.T) {
	primary := &llmmock.Provider{StreamErr: errors.New("stream failed")}
	secondary := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "NARRATE: opening"}, {Text: " Chrome", FinishReason: "stop"}},
	}
	fb := newLLMChain(primary, secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "NARRATE: opening Chrome" {
		t.Fatalf("streamed text = %q", text)
	}
}

func TestLLMFallback_CountTokens_Failover(t *testing.T) {
	primary := &llmmock.Provider{CountTokensErr: errors.New("count failed")}
	secondary := &llmmock.Provider{TokenCount: 42}
	fb := newLLMChain(primary, secondary)

	count, err := fb.CountTokens([]types.Message{{Role: "user", Content: []types.Block{types.TextBlock("open chrome")}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
}

func TestLLMFallback_CapabilitiesComeFromPreferred(t *testing.T) {
	primary := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128000, SupportsToolCalling: true, SupportsVision: true},
	}
	fb := newLLMChain(primary, nil)

	caps := fb.Capabilities()
	if caps.ContextWindow != 128000 || !caps.SupportsToolCalling || !caps.SupportsVision {
		t.Fatalf("caps = %+v", caps)
	}
}
