// Package stt defines the Provider interface for speech-to-text backends.
//
// Unlike a general-purpose transcription SDK, an stt.Provider is scoped to
// exactly the operations the voice loop needs to drive a single utterance:
// a one-time Setup check, a blocking Listen call that streams stabilized
// partial guesses to a callback and returns the final utterance text, and a
// StopListening call that cuts an in-flight Listen short. There is no separate SessionHandle: Listen owns the session for
// its entire duration and is not meant to be called concurrently with itself
// on the same Provider value.
//
// Implementations must be safe for concurrent use between StopListening and
// Listen (StopListening interrupts whichever Listen call is in flight).
package stt

import "context"

// Provider is the abstraction over any STT backend: on-device recognition,
// a cloud websocket recognizer, or a test double.
type Provider interface {
	// Setup prepares the backend (acquiring a microphone handle, opening a
	// websocket, warming a local model) and reports whether it is ready to
	// listen. A false, nil return means the backend is unavailable but not
	// erroring (e.g. no microphone permission yet); callers should fall back
	// rather than treat it as fatal.
	Setup(ctx context.Context) (bool, error)

	// Listen blocks until an utterance completes (silence timeout, no-speech
	// deadline, or ctx cancellation) and returns the final recognized text.
	// onStablePartial is invoked, possibly many times, with the best partial
	// guess once it has been stable for the backend's stability window; it
	// must return quickly since it runs on the recognition goroutine.
	//
	// A ctx cancellation or a concurrent StopListening call returns
	// promptly with a nil error and backend-dependent text (the cloud
	// backend returns its latest partial, the on-device backend returns an
	// empty string) — callers distinguish "stopped early" from "real transcript" by
	// checking ctx.Err() themselves.
	Listen(ctx context.Context, onStablePartial func(partial string)) (string, error)

	// StopListening interrupts an in-flight Listen call. Safe to call when no
	// Listen call is in flight (no-op) and safe to call from a different
	// goroutine than the one blocked in Listen.
	StopListening()
}
