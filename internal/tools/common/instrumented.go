package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/joinly-ai/joinly/internal/instrumentation"
	"github.com/joinly-ai/joinly/internal/provider/browser/platform"
	"github.com/joinly-ai/joinly/internal/server"
)

// ToolHandlerFunc is the mcp-go tool handler signature.
type ToolHandlerFunc = mcpserver.ToolHandlerFunc

// MeetingURLFromArgs returns the meeting_url argument, if present.
func MeetingURLFromArgs(args map[string]any) string {
	if url, ok := args["meeting_url"].(string); ok {
		return url
	}
	return ""
}

// PlatformFromURL maps a meeting URL to a coarse platform label for
// metrics and audit logs. Unknown or empty URLs map to "unknown".
func PlatformFromURL(url string) string {
	if url == "" {
		return "unknown"
	}
	ctl, err := platform.Select(url)
	if err != nil {
		return "unknown"
	}
	return ctl.Name()
}

// InstrumentedToolHandler wraps a tool handler with a span, invocation
// metrics, and audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandlerFunc) ToolHandlerFunc {
	return InstrumentedMeetingToolHandler(toolName, "", sc, handler)
}

// InstrumentedMeetingToolHandler is like InstrumentedToolHandler but also
// records a meeting operation metric, labeled with the platform derived
// from the meeting_url argument when one is present.
func InstrumentedMeetingToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandlerFunc) ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		meetingURL := MeetingURLFromArgs(request.GetArguments())
		meetingPlatform := PlatformFromURL(meetingURL)
		if meetingURL != "" {
			invocation.WithMeeting(meetingURL, meetingPlatform)
		}
		if operation != "" {
			invocation.WithOperation(operation)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if err != nil {
				invocation.CompleteWithError(err)
				instrumentation.SetSpanError(span, err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		metrics.RecordToolInvocationWithHost(ctx, toolName, status, invocation.MeetingHost(), duration)
		if operation != "" {
			metrics.RecordMeetingOperation(ctx, meetingPlatform, operation, status, duration)
		}

		if auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
			auditLogger.LogToolAudit(invocation)
		}

		return result, err
	}
}
