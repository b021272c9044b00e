package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/joinly-ai/joinly/internal/audio"
	"github.com/joinly-ai/joinly/internal/transcript"
	"github.com/joinly-ai/joinly/internal/usage"
	"github.com/joinly-ai/joinly/internal/vad"
)

// DefaultDeepgramListenURL is the Deepgram live transcription endpoint.
const DefaultDeepgramListenURL = "wss://api.deepgram.com/v1/listen"

const (
	defaultDeepgramModel = "nova-3-general"

	// After the finalize message the connection only drains already
	// buffered results, so reads are cut short.
	deepgramIdleTimeout = 2 * time.Second
)

// ErrMissingAPIKey is returned when no Deepgram credential is configured.
var ErrMissingAPIKey = errors.New("missing DEEPGRAM_API_KEY")

// DeepgramConfig configures the Deepgram live transcriber.
type DeepgramConfig struct {
	// APIKey falls back to DEEPGRAM_API_KEY.
	APIKey   string
	URL      string
	Model    string
	Language string
	// Keyterms bias recognition, typically the participant name.
	Keyterms   []string
	Tracker    *usage.Tracker
	HTTPClient *http.Client
}

// Deepgram transcribes utterances over the Deepgram live WebSocket API.
type Deepgram struct {
	cfg DeepgramConfig
}

// NewDeepgram creates a Deepgram transcriber.
func NewDeepgram(cfg DeepgramConfig) (*Deepgram, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultDeepgramListenURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultDeepgramModel
	}
	return &Deepgram{cfg: cfg}, nil
}

type deepgramResult struct {
	Type     string  `json:"type"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	IsFinal  bool    `json:"is_final"`
	Channel  struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Stream transcribes one utterance over a dedicated live connection.
// Windows are forwarded as linear16 frames; when the window channel
// closes, a finalize message flushes the recognizer and remaining
// results are drained under a short idle timeout. Segment times are
// seconds on the window clock, anchored at the first window's timestamp.
func (d *Deepgram) Stream(ctx context.Context, windows <-chan vad.Window) (<-chan transcript.Segment, <-chan error) {
	segc := make(chan transcript.Segment, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(segc)
		if err := d.run(ctx, windows, segc); err != nil {
			errc <- err
		}
	}()

	return segc, errc
}

func (d *Deepgram) run(ctx context.Context, windows <-chan vad.Window, segc chan<- transcript.Segment) error {
	conn, _, err := websocket.Dial(ctx, d.listenURL(), &websocket.DialOptions{
		HTTPClient: d.cfg.HTTPClient,
		HTTPHeader: http.Header{"Authorization": {"Token " + d.cfg.APIKey}},
	})
	if err != nil {
		return fmt.Errorf("dial deepgram: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var mu sync.Mutex
	var seen []vad.Window
	var sentSeconds float64

	finalized := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() {
		defer close(finalized)
		writeErr <- d.writeAudio(ctx, conn, windows, func(w vad.Window) {
			mu.Lock()
			seen = append(seen, w)
			sentSeconds += w.Duration()
			mu.Unlock()
		})
	}()

	readCtx := ctx
	for {
		select {
		case <-finalized:
			var cancel context.CancelFunc
			readCtx, cancel = context.WithTimeout(ctx, deepgramIdleTimeout)
			defer cancel()
			finalized = nil
		default:
		}

		_, data, err := conn.Read(readCtx)
		if err != nil {
			if isStreamEnd(err) {
				break
			}
			return fmt.Errorf("read deepgram: %w", err)
		}

		var result deepgramResult
		if err := json.Unmarshal(data, &result); err != nil || result.Type != "Results" || !result.IsFinal {
			continue
		}
		if len(result.Channel.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(result.Channel.Alternatives[0].Transcript)
		if text == "" {
			continue
		}

		mu.Lock()
		speaker := dominantSpeaker(seen)
		total := sentSeconds
		var streamStart float64
		if len(seen) > 0 {
			streamStart = float64(seen[0].TimeNS) / 1e9
		}
		mu.Unlock()

		// Deepgram reports times relative to the stream start; anchor
		// them at the first window's timestamp.
		segc <- transcript.Segment{
			Text:    text,
			Start:   streamStart + clamp(result.Start, total),
			End:     streamStart + clamp(result.Start+result.Duration, total),
			Speaker: speaker,
		}
	}

	if err := <-writeErr; err != nil {
		return err
	}

	if d.cfg.Tracker != nil {
		mu.Lock()
		total := sentSeconds
		mu.Unlock()
		d.cfg.Tracker.Add("deepgram_stt",
			map[string]float64{"seconds": total},
			map[string]string{"model": d.cfg.Model})
	}
	return nil
}

func (d *Deepgram) writeAudio(ctx context.Context, conn *websocket.Conn, windows <-chan vad.Window, record func(vad.Window)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w, ok := <-windows:
			if !ok {
				for _, msg := range []string{`{"type":"Finalize"}`, `{"type":"CloseStream"}`} {
					if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
						return fmt.Errorf("finalize deepgram stream: %w", err)
					}
				}
				return nil
			}
			pcm, err := audio.ConvertByteDepth(w.Data, audio.ByteDepth32, audio.ByteDepth16)
			if err != nil {
				return fmt.Errorf("convert window: %w", err)
			}
			if err := conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
			record(w)
		}
	}
}

func (d *Deepgram) listenURL() string {
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(vad.SampleRate))
	q.Set("channels", "1")
	q.Set("smart_format", "true")
	q.Set("interim_results", "false")
	if d.cfg.Language != "" {
		q.Set("language", d.cfg.Language)
	}
	for _, term := range d.cfg.Keyterms {
		q.Add("keyterm", term)
	}
	return d.cfg.URL + "?" + q.Encode()
}

// isStreamEnd reports whether a read error means the server finished the
// stream: a normal close or the post-finalize idle timeout.
func isStreamEnd(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
