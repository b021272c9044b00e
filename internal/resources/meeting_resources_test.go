package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/server"
	"github.com/joinly-ai/joinly/internal/session"
	"github.com/joinly-ai/joinly/internal/usage"
)

func newTestContext(t *testing.T) *server.ServerContext {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), server.ServerContextConfig{
		Name:    "joinly",
		Session: session.NewMeetingSession(nil, nil, nil),
		Usage:   usage.NewTracker(),
	})
	require.NoError(t, err)
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func contentText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok, "expected text resource contents")
	assert.Equal(t, "application/json", text.MIMEType)
	return text.Text
}

func TestRegisterMeetingResources(t *testing.T) {
	s := mcpserver.NewMCPServer("joinly-test", "0.0.0",
		mcpserver.WithResourceCapabilities(true, true),
	)
	require.NoError(t, RegisterMeetingResources(s, newTestContext(t)))
}

func TestTranscriptResourceEmptyBeforeJoin(t *testing.T) {
	sc := newTestContext(t)

	contents, err := handleTranscript(context.Background(), readRequest(TranscriptURI), sc)
	require.NoError(t, err)

	var decoded struct {
		Segments []any `json:"segments"`
	}
	require.NoError(t, json.Unmarshal([]byte(contentText(t, contents)), &decoded))
	assert.Empty(t, decoded.Segments)
}

func TestSegmentsResourceEmptyBeforeJoin(t *testing.T) {
	sc := newTestContext(t)

	contents, err := handleSegments(context.Background(), readRequest(SegmentsURI), sc)
	require.NoError(t, err)
	assert.NotEmpty(t, contentText(t, contents))
}

func TestUsageResource(t *testing.T) {
	sc := newTestContext(t)
	sc.Usage().Add("whisper", map[string]float64{"seconds": 12.5}, nil)

	contents, err := handleUsage(context.Background(), readRequest(UsageURI), sc)
	require.NoError(t, err)

	body := contentText(t, contents)
	assert.Contains(t, body, "whisper")
	assert.Contains(t, body, "12.5")
}

func TestStartUpdateNotifierStops(t *testing.T) {
	s := mcpserver.NewMCPServer("joinly-test", "0.0.0",
		mcpserver.WithResourceCapabilities(true, true),
	)
	sc := newTestContext(t)

	stop := StartUpdateNotifier(s, sc)
	require.NotNil(t, stop)
	stop()
}
