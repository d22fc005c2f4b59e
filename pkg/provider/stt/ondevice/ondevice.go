// Package ondevice provides a local speech-recognition STT backend. It
// talks to a small on-device English speech model server (loaded lazily on
// first use) over HTTP, segmenting the microphone stream into utterances
// with a built-in energy-based voice-activity detector rather than relying
// on the server for streaming.
package ondevice

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vox-cua/agent/pkg/provider/stt"
)

const (
	bitsPerSample = 16

	// energyFloor is the normalized RMS energy (0.0-1.0) below which a PCM
	// chunk is considered silence.
	energyFloor = 0.02

	// endOfSpeechSilence is how long measured energy must stay below
	// energyFloor, after speech has started, before the utterance is
	// considered complete.
	endOfSpeechSilence = 350 * time.Millisecond

	// noSpeechDeadline ends Listen if no speech is ever detected.
	noSpeechDeadline = 60 * time.Second

	// partialStability throttles interim transcriptions of the in-progress
	// buffer, mirroring the cloud backend's 500ms stability window.
	partialStability = 500 * time.Millisecond

	// waitingPlaceholder is the model's internal filler text emitted before
	// it has any real speech to report; it must never reach the caller.
	waitingPlaceholder = "waiting for speech…"

	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel names the local model variant to request from the server
// (e.g. "base.en", "small.en"). Empty uses whatever the server was started
// with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the recognition language hint sent to the server.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// Provider implements stt.Provider backed by a local on-device speech model
// server, with VAD-based utterance segmentation performed here.
type Provider struct {
	serverURL string
	model     string
	language  string
	audio     stt.AudioSource
	client    *http.Client

	mu       sync.Mutex
	loaded   bool
	stopped  chan struct{}
}

// New creates an on-device Provider. serverURL points at the local speech
// model server (e.g. "http://127.0.0.1:8081"); audio is the microphone
// source the provider reads from.
func New(serverURL string, audio stt.AudioSource, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("ondevice: serverURL must not be empty")
	}
	if audio == nil {
		return nil, errors.New("ondevice: audio source must not be nil")
	}
	p := &Provider{
		serverURL: serverURL,
		language:  defaultLanguage,
		audio:     audio,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Setup loads the speech model on first use by pinging the server's health
// endpoint. A failed or unreachable server reports (false, nil) so the
// voice loop falls back to the cloud backend rather than treating this as
// fatal.
func (p *Provider) Setup(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.loaded {
		p.mu.Unlock()
		return true, nil
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("ondevice: build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return true, nil
}

// Listen captures microphone audio, segments it with an energy-based VAD,
// and submits the first completed utterance to the local model for
// transcription.
func (p *Provider) Listen(ctx context.Context, onStablePartial func(string)) (string, error) {
	p.mu.Lock()
	stopped := make(chan struct{})
	p.stopped = stopped
	p.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	audioCh, err := p.audio.Open(listenCtx)
	if err != nil {
		return "", fmt.Errorf("ondevice: open audio source: %w", err)
	}
	defer p.audio.Close()

	sampleRate := p.audio.SampleRate()
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	var (
		buffer        []byte
		hadSpeech     bool
		silenceDur    time.Duration
		lastPartial   string
		lastPartialAt time.Time
	)

	noSpeechTimer := time.NewTimer(noSpeechDeadline)
	defer noSpeechTimer.Stop()

	for {
		select {
		case <-stopped:
			return "", nil

		case <-ctx.Done():
			return "", nil

		case <-noSpeechTimer.C:
			return "", nil

		case chunk, ok := <-audioCh:
			if !ok {
				return flushAndFilter(ctx, p, buffer)
			}

			energy := normalizedRMS(chunk)
			chunkDur := chunkDuration(chunk, sampleRate)

			if energy < energyFloor {
				if hadSpeech {
					silenceDur += chunkDur
					buffer = append(buffer, chunk...)
					if silenceDur >= endOfSpeechSilence {
						return flushAndFilter(ctx, p, buffer)
					}
				}
				continue
			}

			if !hadSpeech {
				hadSpeech = true
				if !noSpeechTimer.Stop() {
					select {
					case <-noSpeechTimer.C:
					default:
					}
				}
			}
			silenceDur = 0
			buffer = append(buffer, chunk...)
			if onStablePartial != nil && time.Since(lastPartialAt) >= partialStability {
				lastPartialAt = time.Now()
				if text, err := p.infer(listenCtx, buffer); err == nil {
					trimmed := strings.TrimSpace(text)
					// The model reports its internal placeholder until it has
					// real speech; that must never surface as a stable partial.
					if trimmed != "" && trimmed != waitingPlaceholder && trimmed != lastPartial {
						lastPartial = trimmed
						onStablePartial(trimmed)
					}
				}
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

// flushAndFilter transcribes buffer (if non-empty) and strips the model's
// internal placeholder text before returning it as the utterance result.
func flushAndFilter(ctx context.Context, p *Provider, buffer []byte) (string, error) {
	if len(buffer) == 0 {
		return "", nil
	}
	text, err := p.infer(ctx, buffer)
	if err != nil {
		return "", fmt.Errorf("ondevice: infer: %w", err)
	}
	if strings.TrimSpace(text) == waitingPlaceholder {
		return "", nil
	}
	return text, nil
}

// infer encodes pcm as WAV and submits it to the local model server.
func (p *Provider) infer(ctx context.Context, pcm []byte) (string, error) {
	sampleRate := p.audio.SampleRate()
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	wav := encodeWAV(pcm, sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("write wav data: %w", err)
	}
	if p.language != "" {
		_ = mw.WriteField("language", p.language)
	}
	if p.model != "" {
		_ = mw.WriteField("model", p.model)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse JSON response: %w", err)
	}
	return result.Text, nil
}

// normalizedRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer, normalized to the 0.0-1.0 range.
func normalizedRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	return rms / 32767.0
}

// chunkDuration returns the playback duration of a mono 16-bit PCM chunk.
func chunkDuration(chunk []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(chunk) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a RIFF/WAV
// container suitable for a multipart form upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

var _ stt.Provider = (*Provider)(nil)
