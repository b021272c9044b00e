package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joinly-ai/joinly/internal/usage"
)

// DefaultKokoroURL is the local kokoro inference server.
const DefaultKokoroURL = "http://127.0.0.1:8880"

const defaultKokoroVoice = "af_bella"

// KokoroConfig configures the kokoro synthesizer.
type KokoroConfig struct {
	// URL of an OpenAI-compatible speech server. Falls back to
	// JOINLY_KOKORO_URL, then DefaultKokoroURL.
	URL   string
	Voice string
	Speed float64
	// Device is the inference device hint forwarded to the server,
	// e.g. "cuda". Empty leaves the server's own choice.
	Device  string
	Tracker *usage.Tracker
	Client  *http.Client
}

// Kokoro synthesizes speech against a local kokoro server speaking the
// OpenAI speech API, returning raw 24 kHz linear16 PCM.
type Kokoro struct {
	cfg KokoroConfig
}

// NewKokoro creates a kokoro synthesizer.
func NewKokoro(cfg KokoroConfig) *Kokoro {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("JOINLY_KOKORO_URL")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultKokoroURL
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultKokoroVoice
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Kokoro{cfg: cfg}
}

// Stream synthesizes the text sentence by sentence.
func (k *Kokoro) Stream(ctx context.Context, text string) (<-chan Segment, <-chan error) {
	segc := make(chan Segment, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(segc)

		for _, sentence := range SplitSentences(text) {
			pcm, err := k.synthesize(ctx, sentence)
			if err != nil {
				errc <- err
				return
			}
			if k.cfg.Tracker != nil {
				k.cfg.Tracker.Add("kokoro_tts",
					map[string]float64{"characters": float64(len(sentence))},
					map[string]string{"voice": k.cfg.Voice})
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

func (k *Kokoro) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	body := map[string]any{
		"model":           "kokoro",
		"input":           sentence,
		"voice":           k.cfg.Voice,
		"speed":           k.cfg.Speed,
		"response_format": "pcm",
	}
	if k.cfg.Device != "" {
		body["device"] = k.cfg.Device
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		k.cfg.URL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kokoro request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("kokoro server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read kokoro audio: %w", err)
	}
	return pcm, nil
}
