package meeting_tools

import (
	"context"
	"encoding/base64"
	"io"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/audio"
	"github.com/joinly-ai/joinly/internal/provider"
	"github.com/joinly-ai/joinly/internal/server"
	"github.com/joinly-ai/joinly/internal/session"
)

type stubProvider struct {
	history      provider.ChatHistory
	participants []provider.Participant
	snapshot     provider.Snapshot
	muted        bool
	sent         []string
}

func (p *stubProvider) Start(ctx context.Context) error { return nil }
func (p *stubProvider) Stop(ctx context.Context) error  { return nil }

func (p *stubProvider) Join(ctx context.Context, url, name, passcode string) error { return nil }
func (p *stubProvider) Leave(ctx context.Context) error                            { return nil }

func (p *stubProvider) SendChatMessage(ctx context.Context, message string) error {
	p.sent = append(p.sent, message)
	return nil
}

func (p *stubProvider) GetChatHistory(ctx context.Context) (provider.ChatHistory, error) {
	return p.history, nil
}

func (p *stubProvider) GetParticipants(ctx context.Context) ([]provider.Participant, error) {
	return p.participants, nil
}

func (p *stubProvider) Mute(ctx context.Context) error   { p.muted = true; return nil }
func (p *stubProvider) Unmute(ctx context.Context) error { p.muted = false; return nil }

func (p *stubProvider) AudioReader() provider.AudioReader { return p }
func (p *stubProvider) AudioWriter() provider.AudioWriter { return p }
func (p *stubProvider) VideoReader() provider.VideoReader { return p }

func (p *stubProvider) Read(ctx context.Context) (audio.Chunk, error) {
	return audio.Chunk{}, io.EOF
}

func (p *stubProvider) Write(ctx context.Context, pcm []byte) error { return nil }
func (p *stubProvider) ChunkSize() int                              { return 1920 }

func (p *stubProvider) Format() audio.Format {
	return audio.Format{SampleRate: 16000, ByteDepth: audio.ByteDepth16}
}

func (p *stubProvider) Snapshot(ctx context.Context) (provider.Snapshot, error) {
	return p.snapshot, nil
}

func newToolContext(t *testing.T, p provider.MeetingProvider) *server.ServerContext {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), server.ServerContextConfig{
		Name:    "joinly",
		Session: session.NewMeetingSession(p, nil, nil),
	})
	require.NoError(t, err)
	return sc
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestRegisterMeetingTools(t *testing.T) {
	s := mcpserver.NewMCPServer("joinly-test", "0.0.0")
	require.NoError(t, RegisterMeetingTools(s, newToolContext(t, &stubProvider{})))
}

func TestJoinMeetingRequiresURL(t *testing.T) {
	sc := newToolContext(t, &stubProvider{})

	result, err := handleJoinMeeting(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "meeting_url is required")
}

func TestSpeakTextRequiresText(t *testing.T) {
	sc := newToolContext(t, &stubProvider{})

	result, err := handleSpeakText(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSendChatMessage(t *testing.T) {
	p := &stubProvider{}
	sc := newToolContext(t, p)

	result, err := handleSendChatMessage(context.Background(), callRequest(map[string]any{
		"message": "hello everyone",
	}), sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Sent message.", textContent(t, result))
	assert.Equal(t, []string{"hello everyone"}, p.sent)
}

func TestGetChatHistory(t *testing.T) {
	p := &stubProvider{history: provider.ChatHistory{
		Messages: []provider.ChatMessage{{Text: "hi", Sender: "Ada"}},
	}}
	sc := newToolContext(t, p)

	result, err := handleGetChatHistory(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	body := textContent(t, result)
	assert.Contains(t, body, "hi")
	assert.Contains(t, body, "Ada")
}

func TestGetParticipants(t *testing.T) {
	p := &stubProvider{participants: []provider.Participant{{Name: "Ada"}, {Name: "Grace"}}}
	sc := newToolContext(t, p)

	result, err := handleGetParticipants(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	body := textContent(t, result)
	assert.Contains(t, body, "Ada")
	assert.Contains(t, body, "Grace")
}

func TestGetTranscriptBeforeJoin(t *testing.T) {
	sc := newToolContext(t, &stubProvider{})

	result, err := handleGetTranscript(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "no meeting joined")
}

func TestGetTranscriptRejectsBadArgs(t *testing.T) {
	sc := newToolContext(t, &stubProvider{})

	result, err := handleGetTranscript(context.Background(), callRequest(map[string]any{
		"mode": "latest",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "minutes must be positive")

	result, err = handleGetTranscript(context.Background(), callRequest(map[string]any{
		"mode": "sideways",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "invalid mode")
}

func TestGetVideoSnapshot(t *testing.T) {
	p := &stubProvider{snapshot: provider.Snapshot{
		Data:      []byte{0xff, 0xd8, 0xff},
		MediaType: "image/jpeg",
	}}
	sc := newToolContext(t, p)

	result, err := handleGetVideoSnapshot(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	img, ok := mcp.AsImageContent(result.Content[0])
	require.True(t, ok, "expected image content")
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(p.snapshot.Data), img.Data)
}

func TestMuteUnmute(t *testing.T) {
	p := &stubProvider{}
	sc := newToolContext(t, p)

	result, err := handleMuteYourself(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.Equal(t, "Muted yourself.", textContent(t, result))
	assert.True(t, p.muted)

	result, err = handleUnmuteYourself(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.Equal(t, "Unmuted yourself.", textContent(t, result))
	assert.False(t, p.muted)
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}
