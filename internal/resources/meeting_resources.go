package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/joinly-ai/joinly/internal/events"
	"github.com/joinly-ai/joinly/internal/server"
	"github.com/joinly-ai/joinly/internal/session"
	"github.com/joinly-ai/joinly/internal/transcript"
)

// Resource URIs served by the meeting server.
const (
	TranscriptURI = "transcript://live"
	SegmentsURI   = "transcript://live/segments"
	UsageURI      = "usage://current"
)

// RegisterMeetingResources registers the live meeting resources with the
// MCP server.
func RegisterMeetingResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	transcriptResource := mcp.NewResource(
		TranscriptURI,
		"Live Transcript",
		mcp.WithResourceDescription("Live transcript of the meeting participant utterances."),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(transcriptResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleTranscript(ctx, request, sc)
	})

	segmentsResource := mcp.NewResource(
		SegmentsURI,
		"Live Transcript Segments",
		mcp.WithResourceDescription("Live transcript segments."),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(segmentsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSegments(ctx, request, sc)
	})

	usageResource := mcp.NewResource(
		UsageURI,
		"Service Usage",
		mcp.WithResourceDescription("Current usage statistics of services."),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(usageResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUsage(ctx, request, sc)
	})

	return nil
}

// StartUpdateNotifier forwards pipeline events to MCP clients as
// resource update notifications. Utterances update the live transcript,
// individual segments update the raw segment view. The returned function
// stops the forwarding.
func StartUpdateNotifier(s *mcpserver.MCPServer, sc *server.ServerContext) func() {
	notify := func(uri string) func() {
		return func() {
			s.SendNotificationToAllClients("notifications/resources/updated", map[string]any{
				"uri": uri,
			})
		}
	}

	unsubUtterance := sc.Session().Subscribe(events.TypeUtterance, notify(TranscriptURI))
	unsubSegment := sc.Session().Subscribe(events.TypeSegment, notify(SegmentsURI))

	return func() {
		unsubUtterance()
		unsubSegment()
	}
}

// liveTranscript returns the current transcript, or an empty one when no
// meeting has been joined yet.
func liveTranscript(sc *server.ServerContext) (*transcript.Transcript, error) {
	tr, err := sc.Session().Transcript()
	if errors.Is(err, session.ErrNoMeetingJoined) {
		return transcript.New(), nil
	}
	return tr, err
}

func handleTranscript(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	tr, err := liveTranscript(sc)
	if err != nil {
		return nil, err
	}
	return jsonContents(request.Params.URI, tr.WithRole(transcript.RoleParticipant).Compact())
}

func handleSegments(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	tr, err := liveTranscript(sc)
	if err != nil {
		return nil, err
	}
	return jsonContents(request.Params.URI, tr)
}

func handleUsage(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, sc.Usage())
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
