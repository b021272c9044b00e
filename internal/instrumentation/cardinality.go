package instrumentation

import "net/url"

// Cardinality management helpers for metrics.
//
// Meeting URLs are unique per meeting and can carry passcodes in query
// parameters. Metrics and general logs use only the host portion.

// ExtractMeetingHost returns the host of a meeting URL.
//
// Example:
//
//	ExtractMeetingHost("https://meet.google.com/abc-defg-hij")  // "meet.google.com"
//	ExtractMeetingHost("https://us02web.zoom.us/j/123?pwd=x")   // "us02web.zoom.us"
//	ExtractMeetingHost("not a url")                             // "unknown"
//	ExtractMeetingHost("")                                      // "unknown"
func ExtractMeetingHost(meetingURL string) string {
	if meetingURL == "" {
		return "unknown"
	}

	u, err := url.Parse(meetingURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// Common operation types for meeting provider metrics.
const (
	OperationJoin         = "join"
	OperationLeave        = "leave"
	OperationSpeak        = "speak"
	OperationChatSend     = "send_chat_message"
	OperationChatHistory  = "get_chat_history"
	OperationParticipants = "get_participants"
	OperationMute         = "mute"
	OperationUnmute       = "unmute"
	OperationSnapshot     = "get_video_snapshot"
	OperationTranscript   = "get_transcript"
)
