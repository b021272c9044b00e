package instrumentation

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolInvocationComplete(t *testing.T) {
	ti := NewToolInvocation("join_meeting")
	assert.Equal(t, "join_meeting", ti.Tool)
	assert.False(t, ti.StartTime.IsZero())

	time.Sleep(time.Millisecond)
	ti.Complete(true, nil)
	assert.True(t, ti.Success)
	assert.Greater(t, ti.Duration, time.Duration(0))
	assert.Empty(t, ti.Error)
	assert.Equal(t, StatusSuccess, ti.Status())
}

func TestToolInvocationCompleteWithError(t *testing.T) {
	ti := NewToolInvocation("speak_text").CompleteWithError(errors.New("tts unavailable"))
	assert.False(t, ti.Success)
	assert.Equal(t, "tts unavailable", ti.Error)
	assert.Equal(t, StatusError, ti.Status())
}

func TestToolInvocationLogAttrsUsesHost(t *testing.T) {
	ti := NewToolInvocation("join_meeting").
		WithMeeting("https://us02web.zoom.us/j/1234?pwd=secret", "Zoom").
		WithOperation(OperationJoin).
		CompleteSuccess()

	attrs := ti.LogAttrs()
	found := map[string]string{}
	for _, a := range attrs {
		if a.Value.Kind() == slog.KindString {
			found[a.Key] = a.Value.String()
		}
	}

	assert.Equal(t, "us02web.zoom.us", found["meeting_host"])
	assert.Equal(t, "Zoom", found["platform"])
	assert.NotContains(t, found, "meeting_url")
}

func TestToolInvocationLogAuditAttrsIncludesURL(t *testing.T) {
	ti := NewToolInvocation("join_meeting").
		WithMeeting("https://meet.google.com/abc-defg-hij", "GoogleMeet").
		CompleteSuccess()

	attrs := ti.LogAuditAttrs()
	var url string
	for _, a := range attrs {
		if a.Key == "meeting_url" {
			url = a.Value.String()
		}
	}
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", url)
}

func auditLoggerForTest(t *testing.T, config AuditLoggingConfig) (*AuditLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuditLoggerWithConfig(logger, config), &buf
}

func TestAuditLoggerRedactsURLByDefault(t *testing.T) {
	al, buf := auditLoggerForTest(t, AuditLoggingConfig{Enabled: true})

	ti := NewToolInvocation("join_meeting").
		WithMeeting("https://us02web.zoom.us/j/1234?pwd=secret", "Zoom").
		CompleteSuccess()
	al.LogToolInvocation(ti)

	out := buf.String()
	require.Contains(t, out, "tool_executed")
	assert.Contains(t, out, "us02web.zoom.us")
	assert.NotContains(t, out, "pwd=secret")
}

func TestAuditLoggerIncludesURLWhenConfigured(t *testing.T) {
	al, buf := auditLoggerForTest(t, AuditLoggingConfig{Enabled: true, IncludeMeetingURLs: true})

	ti := NewToolInvocation("join_meeting").
		WithMeeting("https://us02web.zoom.us/j/1234?pwd=secret", "Zoom").
		CompleteSuccess()
	al.LogToolInvocation(ti)

	assert.Contains(t, buf.String(), "pwd=secret")
}

func TestAuditLoggerDisabled(t *testing.T) {
	al, buf := auditLoggerForTest(t, AuditLoggingConfig{Enabled: false})

	al.LogToolInvocation(NewToolInvocation("join_meeting").CompleteSuccess())
	al.LogToolAudit(NewToolInvocation("join_meeting").CompleteSuccess())

	assert.Empty(t, buf.String())
}

func TestAuditLoggerFailureLevel(t *testing.T) {
	al, buf := auditLoggerForTest(t, AuditLoggingConfig{Enabled: true})

	al.LogToolInvocation(NewToolInvocation("speak_text").CompleteWithError(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "tool_failed")
	assert.Contains(t, out, "boom")
}
