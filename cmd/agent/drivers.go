package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vox-cua/agent/internal/agenterr"
	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/internal/pipeline"
	"github.com/vox-cua/agent/pkg/provider/stt"
	"github.com/vox-cua/agent/pkg/provider/tts"
)

// Drivers are the host integration points the orchestration core reaches
// through interfaces only (spec.md §1): screen capture, input injection, the
// overlay widget, microphone audio, and speech synthesis. A platform build
// replaces these before calling run; the defaults below let the text REPL
// and the model pipeline operate, reporting the missing desktop bindings as
// the permission/capture errors the core already absorbs (spec.md §7).
type Drivers struct {
	Screen  desktop.ScreenSource
	Sink    desktop.ActionSink
	Overlay pipeline.Overlay
	Audio   stt.AudioSource
	TTS     tts.Provider
}

func defaultDrivers() Drivers {
	return Drivers{
		Screen:  unboundScreen{},
		Sink:    unboundSink{},
		Overlay: nil,
		Audio:   unboundAudio{},
		TTS:     consoleTTS{},
	}
}

type unboundScreen struct{}

func (unboundScreen) Capture(ctx context.Context, maxModelWidth int) (desktop.Frame, error) {
	return desktop.Frame{}, fmt.Errorf("%w: no screen capture binding in this build", agenterr.ErrScreenCaptureLost)
}

type unboundSink struct{}

func (unboundSink) Dispatch(ctx context.Context, a desktop.ComputerAction) error {
	return fmt.Errorf("%w: no input injection binding in this build", agenterr.ErrPermissionDenied)
}

func (unboundSink) MaximizeForegroundWindow(ctx context.Context) error {
	return fmt.Errorf("%w: no window management binding in this build", agenterr.ErrPermissionDenied)
}

type unboundAudio struct{}

func (unboundAudio) Open(ctx context.Context) (<-chan []byte, error) {
	return nil, fmt.Errorf("%w: no microphone binding in this build", agenterr.ErrPermissionDenied)
}

func (unboundAudio) SampleRate() int { return 16000 }

func (unboundAudio) Close() error { return nil }

// consoleTTS prints narration to stderr instead of synthesizing audio, so
// the queue's ordering and preemption semantics stay observable without a
// platform speech binding.
type consoleTTS struct{}

func (consoleTTS) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for t := range text {
			select {
			case <-ctx.Done():
				return
			default:
			}
			fmt.Fprintf(os.Stderr, "[speak] %s\n", t)
		}
	}()
	return out, nil
}
