package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joinly-ai/joinly/internal/usage"
)

// DefaultElevenLabsURL is the ElevenLabs API base.
const DefaultElevenLabsURL = "https://api.elevenlabs.io"

const defaultElevenLabsModel = "eleven_flash_v2_5"

// Reasonable default voices per language; the English voice doubles as
// the fallback.
var elevenLabsVoices = map[string]string{
	"en": "XrExE9yKIg1WjnnlVkGX",
	"de": "1iF3vHdwHKuVKSPDK23Z",
}

// ErrMissingElevenLabsKey is returned when no credential is configured.
var ErrMissingElevenLabsKey = errors.New("missing ELEVENLABS_API_KEY")

// ElevenLabsConfig configures the ElevenLabs synthesizer.
type ElevenLabsConfig struct {
	// APIKey falls back to ELEVENLABS_API_KEY.
	APIKey   string
	URL      string
	VoiceID  string
	ModelID  string
	Language string
	Tracker  *usage.Tracker
	Client   *http.Client
}

// ElevenLabs synthesizes speech over the ElevenLabs streaming HTTP API
// as 24 kHz linear16 PCM.
type ElevenLabs struct {
	cfg ElevenLabsConfig
}

// NewElevenLabs creates an ElevenLabs synthesizer.
func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingElevenLabsKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultElevenLabsURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultElevenLabsModel
	}
	if cfg.VoiceID == "" {
		voice, ok := elevenLabsVoices[cfg.Language]
		if !ok {
			voice = elevenLabsVoices["en"]
		}
		cfg.VoiceID = voice
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ElevenLabs{cfg: cfg}, nil
}

// Stream synthesizes the text sentence by sentence.
func (e *ElevenLabs) Stream(ctx context.Context, text string) (<-chan Segment, <-chan error) {
	segc := make(chan Segment, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(segc)

		for _, sentence := range SplitSentences(text) {
			pcm, err := e.synthesize(ctx, sentence)
			if err != nil {
				errc <- err
				return
			}
			if e.cfg.Tracker != nil {
				e.cfg.Tracker.Add("elevenlabs_tts",
					map[string]float64{"characters": float64(len(sentence))},
					map[string]string{"model": e.cfg.ModelID, "voice": e.cfg.VoiceID})
			}
			select {
			case segc <- Segment{Text: sentence, PCM: pcm}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return segc, errc
}

func (e *ElevenLabs) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	body := map[string]any{
		"text":     sentence,
		"model_id": e.cfg.ModelID,
	}
	// Flash and turbo models accept an explicit language code.
	if e.cfg.Language != "" && strings.Contains(e.cfg.ModelID, "_v2_5") {
		body["language_code"] = e.cfg.Language
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=pcm_%d",
		e.cfg.URL, e.cfg.VoiceID, SampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read elevenlabs audio: %w", err)
	}
	return pcm, nil
}
