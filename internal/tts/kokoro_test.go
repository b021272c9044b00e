package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/usage"
)

func collect(t *testing.T, segc <-chan Segment, errc <-chan error) []Segment {
	t.Helper()
	var out []Segment
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

func TestKokoroStream(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)
		w.Write(make([]byte, 4800))
	}))
	defer srv.Close()

	tracker := usage.NewTracker()
	k := NewKokoro(KokoroConfig{URL: srv.URL, Tracker: tracker})

	segc, errc := k.Stream(context.Background(), "Hello there. How are you?")
	segs := collect(t, segc, errc)

	require.Len(t, segs, 2)
	assert.Equal(t, "Hello there.", segs[0].Text)
	assert.Equal(t, "How are you?", segs[1].Text)
	assert.Len(t, segs[0].PCM, 4800)
	assert.InDelta(t, 0.1, segs[0].Duration(), 1e-9)

	require.Len(t, requests, 2)
	assert.Equal(t, "af_bella", requests[0]["voice"])
	assert.Equal(t, "pcm", requests[0]["response_format"])

	totals := tracker.Totals()
	require.Len(t, totals, 1)
	assert.Equal(t, "kokoro_tts", totals[0].Service)
	assert.Equal(t, 2, totals[0].Requests)
}

func TestKokoroSendsDeviceHint(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write(make([]byte, 480))
	}))
	defer srv.Close()

	k := NewKokoro(KokoroConfig{URL: srv.URL, Device: "cuda"})
	segc, errc := k.Stream(context.Background(), "Hello.")
	collect(t, segc, errc)

	assert.Equal(t, "cuda", body["device"])

	body = nil
	k = NewKokoro(KokoroConfig{URL: srv.URL})
	segc, errc = k.Stream(context.Background(), "Hello.")
	collect(t, segc, errc)

	_, present := body["device"]
	assert.False(t, present, "no hint when no device is configured")
}

func TestKokoroServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	k := NewKokoro(KokoroConfig{URL: srv.URL})
	segc, errc := k.Stream(context.Background(), "Hello.")
	for range segc {
	}
	err := <-errc
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestKokoroDefaults(t *testing.T) {
	k := NewKokoro(KokoroConfig{})
	assert.Equal(t, DefaultKokoroURL, k.cfg.URL)
	assert.Equal(t, "af_bella", k.cfg.Voice)
	assert.Equal(t, 1.0, k.cfg.Speed)

	t.Setenv("JOINLY_KOKORO_URL", "http://10.0.0.9:8880")
	k = NewKokoro(KokoroConfig{})
	assert.Equal(t, "http://10.0.0.9:8880", k.cfg.URL)
}
