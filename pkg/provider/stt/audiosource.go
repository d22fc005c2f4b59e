package stt

import "context"

// AudioSource is the seam between a Provider and whatever captures raw
// microphone audio on the host. Like screen capture, microphone access is a
// platform concern dictated by the host's audio stack rather than something
// this module owns outright; Provider implementations depend on this
// interface instead of a concrete OS binding so they can be driven by a
// fake in tests.
type AudioSource interface {
	// Open starts capturing and returns a channel of raw PCM16 mono frames
	// at the source's native sample rate. The channel is closed when ctx is
	// cancelled or Close is called.
	Open(ctx context.Context) (<-chan []byte, error)

	// SampleRate returns the sample rate, in Hz, of frames emitted by Open.
	SampleRate() int

	// Close releases the underlying microphone handle.
	Close() error
}
