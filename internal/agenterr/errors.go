// Package agenterr defines the sentinel error kinds the voice loop and
// pipeline recover from. Every failure in the core is expected to resolve to
// one of these via errors.Is, never an unhandled panic.
package agenterr

import "errors"

var (
	// ErrPermissionDenied covers microphone, speech, screen, and accessibility
	// permission failures. At startup this is fatal; mid-session it fails only
	// the current utterance.
	ErrPermissionDenied = errors.New("agenterr: permission denied")

	// ErrNetworkTransient covers HTTP non-200 responses, connection resets,
	// and stream cuts from the inference backend.
	ErrNetworkTransient = errors.New("agenterr: transient network error")

	// ErrParse covers malformed JSON from the planner. Treated the same as
	// ErrNetworkTransient by callers, logged with the raw response.
	ErrParse = errors.New("agenterr: parse error")

	// ErrModelRefusesToAct covers a model response with no tool calls and no
	// recognized prefix in a non-conversational turn.
	ErrModelRefusesToAct = errors.New("agenterr: model refuses to act")

	// ErrScreenCaptureLost covers a broken screen source mid-utterance.
	ErrScreenCaptureLost = errors.New("agenterr: screen capture lost")

	// ErrUserInterrupt covers a new utterance or "stop" word arriving while a
	// task is in flight. Never announced as an error to the user.
	ErrUserInterrupt = errors.New("agenterr: user interrupt")
)
