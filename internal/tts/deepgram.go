package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/coder/websocket"

	"github.com/joinly-ai/joinly/internal/usage"
)

// DefaultDeepgramSpeakURL is the Deepgram speak WebSocket endpoint.
const DefaultDeepgramSpeakURL = "wss://api.deepgram.com/v1/speak"

// Aura voices per language; English doubles as the fallback.
var deepgramModels = map[string]string{
	"en": "aura-2-andromeda-en",
	"es": "aura-2-estrella-es",
}

// ErrMissingDeepgramKey is returned when no credential is configured.
var ErrMissingDeepgramKey = errors.New("missing DEEPGRAM_API_KEY")

// DeepgramConfig configures the Deepgram synthesizer.
type DeepgramConfig struct {
	// APIKey falls back to DEEPGRAM_API_KEY.
	APIKey     string
	URL        string
	Model      string
	Language   string
	Tracker    *usage.Tracker
	HTTPClient *http.Client
}

// Deepgram synthesizes speech over the Deepgram speak WebSocket API as
// 24 kHz linear16 PCM. Each sentence is flushed separately; the Flushed
// event delimits its audio.
type Deepgram struct {
	cfg DeepgramConfig
}

// NewDeepgram creates a Deepgram synthesizer.
func NewDeepgram(cfg DeepgramConfig) (*Deepgram, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingDeepgramKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultDeepgramSpeakURL
	}
	if cfg.Model == "" {
		model, ok := deepgramModels[cfg.Language]
		if !ok {
			model = deepgramModels["en"]
		}
		cfg.Model = model
	}
	return &Deepgram{cfg: cfg}, nil
}

// Stream synthesizes the text sentence by sentence over one connection.
func (d *Deepgram) Stream(ctx context.Context, text string) (<-chan Segment, <-chan error) {
	segc := make(chan Segment, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(segc)
		if err := d.run(ctx, text, segc); err != nil {
			errc <- err
		}
	}()

	return segc, errc
}

func (d *Deepgram) run(ctx context.Context, text string, segc chan<- Segment) error {
	conn, _, err := websocket.Dial(ctx, d.speakURL(), &websocket.DialOptions{
		HTTPClient: d.cfg.HTTPClient,
		HTTPHeader: http.Header{"Authorization": {"Token " + d.cfg.APIKey}},
	})
	if err != nil {
		return fmt.Errorf("dial deepgram speak: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for _, sentence := range SplitSentences(text) {
		pcm, err := d.synthesize(ctx, conn, sentence)
		if err != nil {
			return err
		}
		if d.cfg.Tracker != nil {
			d.cfg.Tracker.Add("deepgram_tts",
				map[string]float64{"characters": float64(len(sentence))},
				map[string]string{"model": d.cfg.Model})
		}
		select {
		case segc <- Segment{Text: sentence, PCM: pcm}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// synthesize sends one sentence and collects audio until the Flushed
// event.
func (d *Deepgram) synthesize(ctx context.Context, conn *websocket.Conn, sentence string) ([]byte, error) {
	speak, err := json.Marshal(map[string]string{"type": "Speak", "text": sentence})
	if err != nil {
		return nil, fmt.Errorf("build speak message: %w", err)
	}
	for _, msg := range [][]byte{speak, []byte(`{"type":"Flush"}`)} {
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return nil, fmt.Errorf("send speak message: %w", err)
		}
	}

	var pcm []byte
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("read deepgram audio: %w", err)
		}
		if typ == websocket.MessageBinary {
			pcm = append(pcm, data...)
			continue
		}
		var event struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &event); err == nil && event.Type == "Flushed" {
			return pcm, nil
		}
	}
}

func (d *Deepgram) speakURL() string {
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(SampleRate))
	q.Set("mip_opt_out", "true")
	return d.cfg.URL + "?" + q.Encode()
}
