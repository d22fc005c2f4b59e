// Package tts defines the Provider interface for text-to-speech backends.
//
// The agent speaks with a single configured voice — there is no per-NPC
// voice catalogue or cloning workflow, so the interface is reduced to the
// one operation the Narration Queue actually drives: streaming synthesis of
// one utterance of text to PCM audio.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesised. This lets the caller pipe LLM streaming output directly
	// into synthesis without waiting for the full text to be available.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or when ctx is cancelled. The caller must
	// drain the audio channel to avoid blocking the provider's internal
	// goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio
	// channel early; callers should check ctx.Err() to distinguish
	// cancellation from a provider error.
	SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error)
}
