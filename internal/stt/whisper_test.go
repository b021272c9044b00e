package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/transcript"
	"github.com/joinly-ai/joinly/internal/usage"
	"github.com/joinly-ai/joinly/internal/vad"
)

func collectSegments(t *testing.T, segc <-chan transcript.Segment, errc <-chan error) []transcript.Segment {
	t.Helper()
	var out []transcript.Segment
	for seg := range segc {
		out = append(out, seg)
	}
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("error channel not closed")
	}
	return out
}

func TestWhisperStream(t *testing.T) {
	var gotForm struct {
		model, language, hotwords string
		wavBytes                  int
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotForm.model = r.FormValue("model")
		gotForm.language = r.FormValue("language")
		gotForm.hotwords = r.FormValue("hotwords")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 1<<20)
		n, _ := file.Read(buf)
		gotForm.wavBytes = n

		json.NewEncoder(w).Encode(whisperResponse{Segments: []whisperSegment{
			{Text: " hello there ", Start: 0.1, End: 0.5},
		}})
	}))
	defer srv.Close()

	tracker := usage.NewTracker()
	w := NewWhisper(WhisperConfig{
		URL:      srv.URL,
		Model:    "base",
		Language: "en",
		Hotwords: []string{"joinly"},
		Tracker:  tracker,
	})

	windows := make(chan vad.Window, 32)
	// 0.45s of speech then 0.21s of silence triggers a flush before the
	// channel closes.
	for i := 0; i < 15; i++ {
		windows <- speechWindow("Ana")
	}
	for i := 0; i < 7; i++ {
		windows <- silenceWindow()
	}
	close(windows)

	segc, errc := w.Stream(context.Background(), windows)
	segs := collectSegments(t, segc, errc)

	require.Len(t, segs, 1)
	assert.Equal(t, "hello there", segs[0].Text)
	assert.InDelta(t, 0.1, segs[0].Start, 1e-9)
	assert.InDelta(t, 0.5, segs[0].End, 1e-9)
	assert.Equal(t, "Ana", segs[0].Speaker)

	assert.Equal(t, "base", gotForm.model)
	assert.Equal(t, "en", gotForm.language)
	assert.Equal(t, "joinly", gotForm.hotwords)
	assert.Greater(t, gotForm.wavBytes, 44, "WAV upload has a header and data")

	totals := tracker.Totals()
	require.Len(t, totals, 1)
	assert.Equal(t, "whisper_stt", totals[0].Service)
	assert.InDelta(t, 0.66, totals[0].Counts["seconds"], 1e-6)
}

func TestWhisperClampsSegmentTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(whisperResponse{Segments: []whisperSegment{
			{Text: "hi", Start: -2, End: 99},
		}})
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{URL: srv.URL})
	windows := make(chan vad.Window, 32)
	for i := 0; i < 15; i++ {
		windows <- speechWindow("")
	}
	close(windows)

	segc, errc := w.Stream(context.Background(), windows)
	segs := collectSegments(t, segc, errc)

	require.Len(t, segs, 1)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.InDelta(t, 0.45, segs[0].End, 1e-6)
}

func TestWhisperAnchorsSegmentsOnWindowClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(whisperResponse{Segments: []whisperSegment{
			{Text: "late in the call", Start: 0.1, End: 0.5},
		}})
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{URL: srv.URL})
	windows := make(chan vad.Window, 32)
	var script []vad.Window
	for i := 0; i < 15; i++ {
		script = append(script, speechWindow("Ana"))
	}
	for i := 0; i < 7; i++ {
		script = append(script, silenceWindow())
	}
	// An utterance a hundred seconds into the capture keeps its place
	// on the capture clock instead of restarting at zero.
	for _, win := range stampWindows(script, 100*int64(time.Second)) {
		windows <- win
	}
	close(windows)

	segc, errc := w.Stream(context.Background(), windows)
	segs := collectSegments(t, segc, errc)

	require.Len(t, segs, 1)
	assert.InDelta(t, 100.1, segs[0].Start, 1e-6)
	assert.InDelta(t, 100.5, segs[0].End, 1e-6)
}

func TestWhisperSendsDeviceHint(t *testing.T) {
	var gotDevice string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotDevice = r.FormValue("device")
		json.NewEncoder(w).Encode(whisperResponse{})
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{URL: srv.URL, Device: "cuda"})
	windows := make(chan vad.Window, 32)
	for i := 0; i < 15; i++ {
		windows <- speechWindow("")
	}
	close(windows)

	segc, errc := w.Stream(context.Background(), windows)
	collectSegments(t, segc, errc)

	assert.Equal(t, "cuda", gotDevice)
}

func TestWhisperSkipsSilentUtterance(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(whisperResponse{})
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{URL: srv.URL})
	windows := make(chan vad.Window, 8)
	for i := 0; i < 8; i++ {
		windows <- silenceWindow()
	}
	close(windows)

	segc, errc := w.Stream(context.Background(), windows)
	segs := collectSegments(t, segc, errc)

	assert.Empty(t, segs)
	assert.Zero(t, calls, "silence is never uploaded")
}

func TestWhisperServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{URL: srv.URL})
	windows := make(chan vad.Window, 32)
	for i := 0; i < 15; i++ {
		windows <- speechWindow("")
	}
	close(windows)

	segc, errc := w.Stream(context.Background(), windows)
	for range segc {
	}
	err := <-errc
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWhisperDefaults(t *testing.T) {
	w := NewWhisper(WhisperConfig{})
	assert.Equal(t, DefaultWhisperURL, w.cfg.URL)
	assert.Equal(t, "base", w.cfg.Model)

	t.Setenv("JOINLY_WHISPER_URL", "http://10.0.0.5:9000")
	w = NewWhisper(WhisperConfig{})
	assert.Equal(t, "http://10.0.0.5:9000", w.cfg.URL)
}
