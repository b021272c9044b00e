package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepgramStream(t *testing.T) {
	var spoken []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token key", r.Header.Get("Authorization"))
		assert.Equal(t, "aura-2-estrella-es", r.URL.Query().Get("model"))
		assert.Equal(t, "linear16", r.URL.Query().Get("encoding"))
		assert.Equal(t, "24000", r.URL.Query().Get("sample_rate"))

		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(data, &msg))
			switch msg.Type {
			case "Speak":
				spoken = append(spoken, msg.Text)
			case "Flush":
				require.NoError(t, conn.Write(ctx, websocket.MessageBinary, make([]byte, 1200)))
				require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Flushed"}`)))
			}
		}
	}))
	defer srv.Close()

	d, err := NewDeepgram(DeepgramConfig{
		APIKey:   "key",
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Language: "es",
	})
	require.NoError(t, err)

	segc, errc := d.Stream(context.Background(), "Hola. Buenos dias.")
	segs := collect(t, segc, errc)

	require.Len(t, segs, 2)
	assert.Equal(t, []string{"Hola.", "Buenos dias."}, spoken)
	assert.Equal(t, "Hola.", segs[0].Text)
	assert.Len(t, segs[0].PCM, 1200)
}

func TestDeepgramModelFallback(t *testing.T) {
	d, err := NewDeepgram(DeepgramConfig{APIKey: "key", Language: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "aura-2-andromeda-en", d.cfg.Model)
}

func TestDeepgramRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	_, err := NewDeepgram(DeepgramConfig{})
	assert.ErrorIs(t, err, ErrMissingDeepgramKey)
}
