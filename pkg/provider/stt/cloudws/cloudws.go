// Package cloudws provides a cloud speech-recognizer STT backend that
// streams microphone audio to a Deepgram-compatible streaming endpoint over
// a websocket connection and reports partial and final transcripts.
package cloudws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vox-cua/agent/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// stabilityWindow is how long a partial must stay unchanged before it is
	// reported to onStablePartial.
	stabilityWindow = 500 * time.Millisecond

	// silenceTimeout ends the utterance once the recognizer has gone this
	// long without a new partial or final result.
	silenceTimeout = 1200 * time.Millisecond

	// noSpeechDeadline ends the utterance if nothing at all is recognized
	// within this long of Listen starting.
	noSpeechDeadline = 60 * time.Second
)

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint overrides the streaming recognizer endpoint (for testing or
// self-hosted recognizers compatible with the same wire protocol).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithModel sets the recognizer model name.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// Provider implements stt.Provider backed by a cloud streaming recognizer.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	audio    stt.AudioSource

	mu      sync.Mutex
	stopped chan struct{}
}

// New creates a cloud-recognizer Provider. apiKey must be non-empty; audio
// is the microphone source the provider streams from.
func New(apiKey string, audio stt.AudioSource, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cloudws: apiKey must not be empty")
	}
	if audio == nil {
		return nil, errors.New("cloudws: audio source must not be nil")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
		audio:    audio,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Setup dials a short-lived connection to confirm the recognizer endpoint is
// reachable and the API key is accepted. It never returns a hard error for
// conditions the voice loop should fall back on instead: a failed dial
// reports (false, nil).
func (p *Provider) Setup(ctx context.Context) (bool, error) {
	u, err := p.buildURL()
	if err != nil {
		return false, fmt.Errorf("cloudws: build url: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(dialCtx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return false, nil
	}
	conn.Close(websocket.StatusNormalClosure, "setup probe complete")
	return true, nil
}

// Listen opens a streaming session, feeds it microphone audio, and blocks
// until the recognizer reports a final transcript, the silence timer or
// no-speech deadline fires, ctx is cancelled, or StopListening is called.
func (p *Provider) Listen(ctx context.Context, onStablePartial func(string)) (string, error) {
	p.mu.Lock()
	stopped := make(chan struct{})
	p.stopped = stopped
	p.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	audioCh, err := p.audio.Open(listenCtx)
	if err != nil {
		return "", fmt.Errorf("cloudws: open audio source: %w", err)
	}
	defer p.audio.Close()

	u, err := p.buildURL()
	if err != nil {
		return "", fmt.Errorf("cloudws: build url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(listenCtx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("cloudws: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "listen complete")

	updates := make(chan stt.Transcript, 64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		writeLoop(listenCtx, conn, audioCh)
	}()
	go func() {
		defer wg.Done()
		readLoop(listenCtx, conn, updates)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	var (
		lastPartial       string
		lastChangeAt      = time.Now()
		lastReportedAt    string
		lastActivity      = time.Now()
		stabilityTicker   = time.NewTicker(100 * time.Millisecond)
		noSpeechTimer     = time.NewTimer(noSpeechDeadline)
	)
	defer stabilityTicker.Stop()
	defer noSpeechTimer.Stop()

	for {
		select {
		case <-stopped:
			return lastPartial, nil

		case <-ctx.Done():
			return lastPartial, nil

		case <-noSpeechTimer.C:
			return "", nil

		case <-stabilityTicker.C:
			if lastPartial != "" && lastPartial != lastReportedAt && time.Since(lastChangeAt) >= stabilityWindow {
				lastReportedAt = lastPartial
				onStablePartial(lastPartial)
			}
			if lastPartial != "" && time.Since(lastActivity) >= silenceTimeout {
				return lastPartial, nil
			}

		case t, ok := <-updates:
			if !ok {
				return lastPartial, nil
			}
			lastActivity = time.Now()
			if !noSpeechTimer.Stop() {
				select {
				case <-noSpeechTimer.C:
				default:
				}
			}
			noSpeechTimer.Reset(noSpeechDeadline)

			if t.IsFinal {
				return t.Text, nil
			}
			if t.Text != lastPartial {
				lastPartial = t.Text
				lastChangeAt = time.Now()
			}
		}
	}
}

// StopListening interrupts an in-flight Listen call.
func (p *Provider) StopListening() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped != nil {
		select {
		case <-p.stopped:
		default:
			close(p.stopped)
		}
	}
}

// buildURL constructs the streaming recognizer endpoint URL.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(p.audio.SampleRate()))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// writeLoop forwards captured audio frames to the recognizer as binary
// websocket messages until ctx is cancelled or the audio channel closes.
func writeLoop(ctx context.Context, conn *websocket.Conn, audio <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-audio:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		}
	}
}

// readLoop receives JSON result messages from the recognizer and emits them
// as Transcript values until ctx is cancelled or the connection closes.
func readLoop(ctx context.Context, conn *websocket.Conn, updates chan<- stt.Transcript) {
	defer close(updates)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		select {
		case updates <- t:
		case <-ctx.Done():
			return
		}
	}
}

// recognizerResult is the JSON shape of a streaming Results event.
type recognizerResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResult parses a raw recognizer message into a Transcript. Returns
// (zero, false) for messages that should be ignored (non-Results events,
// empty alternatives).
func parseResult(data []byte) (stt.Transcript, bool) {
	var resp recognizerResult
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
