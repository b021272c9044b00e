package meeting_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/joinly-ai/joinly/internal/instrumentation"
	"github.com/joinly-ai/joinly/internal/server"
	"github.com/joinly-ai/joinly/internal/session"
	"github.com/joinly-ai/joinly/internal/tools/common"
	"github.com/joinly-ai/joinly/internal/transcript"
)

// RegisterMeetingTools registers all meeting tools with the MCP server.
func RegisterMeetingTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	joinTool := mcp.NewTool("join_meeting",
		mcp.WithDescription("Join a meeting with the given URL and participant name."),
		mcp.WithString("meeting_url",
			mcp.Required(),
			mcp.Description("URL to join an online meeting"),
		),
		mcp.WithString("participant_name",
			mcp.Description("Name of the participant to join as"),
		),
		mcp.WithString("passcode",
			mcp.Description("Password or passcode for the meeting (if required)"),
		),
	)
	s.AddTool(joinTool, common.InstrumentedMeetingToolHandler("join_meeting", instrumentation.OperationJoin, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleJoinMeeting(ctx, request, sc)
		}))

	leaveTool := mcp.NewTool("leave_meeting",
		mcp.WithDescription("Leave the current meeting."),
	)
	s.AddTool(leaveTool, common.InstrumentedMeetingToolHandler("leave_meeting", instrumentation.OperationLeave, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLeaveMeeting(ctx, request, sc)
		}))

	speakTool := mcp.NewTool("speak_text",
		mcp.WithDescription("Speak the given text in the meeting."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to be spoken"),
		),
	)
	s.AddTool(speakTool, common.InstrumentedMeetingToolHandler("speak_text", instrumentation.OperationSpeak, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSpeakText(ctx, request, sc)
		}))

	sendChatTool := mcp.NewTool("send_chat_message",
		mcp.WithDescription("Send a chat message in the meeting chat."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Message to be sent"),
		),
	)
	s.AddTool(sendChatTool, common.InstrumentedMeetingToolHandler("send_chat_message", instrumentation.OperationChatSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendChatMessage(ctx, request, sc)
		}))

	chatHistoryTool := mcp.NewTool("get_chat_history",
		mcp.WithDescription("Get the chat history from the chat inside the meeting."),
	)
	s.AddTool(chatHistoryTool, common.InstrumentedMeetingToolHandler("get_chat_history", instrumentation.OperationChatHistory, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetChatHistory(ctx, request, sc)
		}))

	participantsTool := mcp.NewTool("get_participants",
		mcp.WithDescription("Get the list of participants in the meeting."),
	)
	s.AddTool(participantsTool, common.InstrumentedMeetingToolHandler("get_participants", instrumentation.OperationParticipants, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetParticipants(ctx, request, sc)
		}))

	transcriptTool := mcp.NewTool("get_transcript",
		mcp.WithDescription("Get the transcript of the meeting. By default, returns the full transcript. "+
			"To get a slice, set mode to 'first' or 'latest' and provide a positive minutes value."),
		mcp.WithString("mode",
			mcp.Description("Mode to get the transcript: 'full' for the entire transcript, "+
				"'first' for the first N minutes, 'latest' for the last N minutes."),
			mcp.Enum("full", "first", "latest"),
		),
		mcp.WithNumber("minutes",
			mcp.Description("Number of minutes to slice the transcript. Only used if mode is 'first' or 'latest'."),
		),
	)
	s.AddTool(transcriptTool, common.InstrumentedMeetingToolHandler("get_transcript", instrumentation.OperationTranscript, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetTranscript(ctx, request, sc)
		}))

	snapshotTool := mcp.NewTool("get_video_snapshot",
		mcp.WithDescription("Get a snapshot of the current video feed, including participant webcams "+
			"and screenshares inside the meeting."),
	)
	s.AddTool(snapshotTool, common.InstrumentedMeetingToolHandler("get_video_snapshot", instrumentation.OperationSnapshot, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetVideoSnapshot(ctx, request, sc)
		}))

	muteTool := mcp.NewTool("mute_yourself",
		mcp.WithDescription("Mute yourself in the meeting."),
	)
	s.AddTool(muteTool, common.InstrumentedMeetingToolHandler("mute_yourself", instrumentation.OperationMute, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMuteYourself(ctx, request, sc)
		}))

	unmuteTool := mcp.NewTool("unmute_yourself",
		mcp.WithDescription("Unmute yourself in the meeting."),
	)
	s.AddTool(unmuteTool, common.InstrumentedMeetingToolHandler("unmute_yourself", instrumentation.OperationUnmute, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUnmuteYourself(ctx, request, sc)
		}))

	return nil
}

func handleJoinMeeting(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	meetingURL, ok := args["meeting_url"].(string)
	if !ok || meetingURL == "" {
		return mcp.NewToolResultError("meeting_url is required"), nil
	}

	name := sc.Name()
	if v, ok := args["participant_name"].(string); ok && v != "" {
		name = v
	}
	passcode, _ := args["passcode"].(string)

	if err := sc.Session().JoinMeeting(ctx, meetingURL, name, passcode); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to join meeting: %v", err)), nil
	}
	sc.Metrics().IncrementActiveSessions(ctx)
	return mcp.NewToolResultText("Joined meeting."), nil
}

func handleLeaveMeeting(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if err := sc.Session().LeaveMeeting(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to leave meeting: %v", err)), nil
	}
	sc.Metrics().DecrementActiveSessions(ctx)
	return mcp.NewToolResultText("Left the meeting."), nil
}

func handleSpeakText(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	text, ok := request.GetArguments()["text"].(string)
	if !ok || text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	if err := sc.Session().SpeakText(ctx, text); err != nil {
		// Interruption by a participant is a normal outcome. The agent
		// gets told what was actually said before the cutoff.
		var interrupted *session.InterruptedError
		if errors.As(err, &interrupted) {
			return mcp.NewToolResultText(interrupted.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to speak: %v", err)), nil
	}
	return mcp.NewToolResultText("Finished speaking."), nil
}

func handleSendChatMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	message, ok := request.GetArguments()["message"].(string)
	if !ok || message == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	if err := sc.Session().SendChatMessage(ctx, message); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send chat message: %v", err)), nil
	}
	return mcp.NewToolResultText("Sent message."), nil
}

func handleGetChatHistory(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	history, err := sc.Session().GetChatHistory(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get chat history: %v", err)), nil
	}
	return jsonResult(history)
}

func handleGetParticipants(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	participants, err := sc.Session().GetParticipants(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get participants: %v", err)), nil
	}
	return jsonResult(participants)
}

func handleGetTranscript(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	mode := "full"
	if v, ok := args["mode"].(string); ok && v != "" {
		mode = v
	}
	minutes := 0.0
	if v, ok := args["minutes"].(float64); ok {
		minutes = v
	}

	switch mode {
	case "full":
	case "first", "latest":
		if minutes <= 0 {
			return mcp.NewToolResultError(fmt.Sprintf("minutes must be positive for mode %q", mode)), nil
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid mode %q, must be one of: full, first, latest", mode)), nil
	}

	tr, err := sc.Session().Transcript()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transcript: %v", err)), nil
	}

	var result *transcript.Transcript
	switch mode {
	case "first":
		result = tr.Before(minutes * 60).Compact()
	case "latest":
		seconds, err := sc.Session().MeetingSeconds()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get transcript: %v", err)), nil
		}
		result = tr.After(seconds - minutes*60).Compact()
	default:
		result = tr.Compact()
	}

	return jsonResult(result)
}

func handleGetVideoSnapshot(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	snapshot, err := sc.Session().GetVideoSnapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get video snapshot: %v", err)), nil
	}
	return mcp.NewToolResultImage("Video snapshot",
		base64.StdEncoding.EncodeToString(snapshot.Data), snapshot.MediaType), nil
}

func handleMuteYourself(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if err := sc.Session().Mute(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to mute: %v", err)), nil
	}
	return mcp.NewToolResultText("Muted yourself."), nil
}

func handleUnmuteYourself(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if err := sc.Session().Unmute(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to unmute: %v", err)), nil
	}
	return mcp.NewToolResultText("Unmuted yourself."), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
