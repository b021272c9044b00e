package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joinly-ai/joinly/internal/audio"
	"github.com/joinly-ai/joinly/internal/transcript"
	"github.com/joinly-ai/joinly/internal/usage"
	"github.com/joinly-ai/joinly/internal/vad"
)

// DefaultWhisperURL is the local faster-whisper inference server.
const DefaultWhisperURL = "http://127.0.0.1:8756"

const (
	defaultWhisperModel = "base"

	// A buffered slice is transcribed once it holds enough voiced audio
	// and speech has paused long enough that the text is stable.
	whisperMinAudioSeconds   = 0.4
	whisperMinSilenceSeconds = 0.2
)

// WhisperConfig configures the whisper transcriber.
type WhisperConfig struct {
	// URL of an OpenAI-compatible transcription server. Falls back to
	// JOINLY_WHISPER_URL, then DefaultWhisperURL.
	URL   string
	Model string
	// Device is the inference device hint forwarded to the server,
	// e.g. "cuda". Empty leaves the server's own choice.
	Device   string
	Language string
	// Hotwords bias decoding, typically the participant name.
	Hotwords []string
	Tracker  *usage.Tracker
	Client   *http.Client
}

// Whisper transcribes utterances against a local faster-whisper server
// speaking the OpenAI transcription API.
type Whisper struct {
	cfg WhisperConfig
}

// NewWhisper creates a whisper transcriber.
func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("JOINLY_WHISPER_URL")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultWhisperURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultWhisperModel
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Whisper{cfg: cfg}
}

// Stream transcribes one utterance. Windows are buffered and flushed to
// the server whenever enough voiced audio has accumulated and speech has
// paused. Segment times are seconds on the window clock, each slice
// anchored at its first window's timestamp.
func (w *Whisper) Stream(ctx context.Context, windows <-chan vad.Window) (<-chan transcript.Segment, <-chan error) {
	segc := make(chan transcript.Segment, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(segc)

		var buf []vad.Window

		flush := func() error {
			if len(buf) == 0 {
				return nil
			}
			dur := windowsSeconds(buf)
			if voicedSeconds(buf) > 0 {
				start := float64(buf[0].TimeNS) / 1e9
				if err := w.transcribeSlice(ctx, buf, start, dur, segc); err != nil {
					return err
				}
			}
			buf = buf[:0]
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case wnd, ok := <-windows:
				if !ok {
					if err := flush(); err != nil {
						errc <- err
					}
					return
				}
				buf = append(buf, wnd)
				if voicedSeconds(buf) >= whisperMinAudioSeconds &&
					trailingSilenceSeconds(buf) >= whisperMinSilenceSeconds {
					if err := flush(); err != nil {
						errc <- err
						return
					}
				}
			}
		}
	}()

	return segc, errc
}

func (w *Whisper) transcribeSlice(ctx context.Context, buf []vad.Window, start, dur float64, segc chan<- transcript.Segment) error {
	var pcm []byte
	for _, wnd := range buf {
		pcm = append(pcm, wnd.Data...)
	}
	wav, err := audio.EncodeWAV(pcm, vad.Format)
	if err != nil {
		return fmt.Errorf("encode utterance: %w", err)
	}

	resp, err := w.post(ctx, wav)
	if err != nil {
		return err
	}

	if w.cfg.Tracker != nil {
		w.cfg.Tracker.Add("whisper_stt",
			map[string]float64{"seconds": dur},
			map[string]string{"model": w.cfg.Model})
	}

	speaker := dominantSpeaker(buf)
	if len(resp.Segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		resp.Segments = []whisperSegment{{Text: resp.Text, Start: 0, End: dur}}
	}
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segc <- transcript.Segment{
			Text:    text,
			Start:   start + clamp(s.Start, dur),
			End:     start + clamp(s.End, dur),
			Speaker: speaker,
		}
	}
	return nil
}

type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

func (w *Whisper) post(ctx context.Context, wav []byte) (*whisperResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	fields := map[string]string{
		"model":           w.cfg.Model,
		"response_format": "verbose_json",
	}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	if w.cfg.Device != "" {
		fields["device"] = w.cfg.Device
	}
	if len(w.cfg.Hotwords) > 0 {
		fields["hotwords"] = strings.Join(w.cfg.Hotwords, " ")
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build transcription request: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.cfg.URL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	httpResp, err := w.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, fmt.Errorf("whisper server returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var resp whisperResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	return &resp, nil
}

func windowsSeconds(windows []vad.Window) float64 {
	var total float64
	for _, w := range windows {
		total += w.Duration()
	}
	return total
}

func voicedSeconds(windows []vad.Window) float64 {
	var total float64
	for _, w := range windows {
		if w.IsSpeech {
			total += w.Duration()
		}
	}
	return total
}

func trailingSilenceSeconds(windows []vad.Window) float64 {
	var total float64
	for i := len(windows) - 1; i >= 0; i-- {
		if windows[i].IsSpeech {
			break
		}
		total += windows[i].Duration()
	}
	return total
}
