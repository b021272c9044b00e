package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrPlatform  = "platform"
	attrStage     = "stage"
	attrService   = "service"
	attrTool      = "tool"
	attrHost      = "host"
)

// Metrics provides methods for recording observability metrics. The zero
// value is a no-op recorder.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeSessions      metric.Int64UpDownCounter

	// Meeting provider metrics
	meetingOperationsTotal   metric.Int64Counter
	meetingOperationDuration metric.Float64Histogram

	// Audio pipeline metrics
	pipelineRequestsTotal   metric.Int64Counter
	pipelineRequestDuration metric.Float64Histogram
	utteranceLatency        metric.Float64Histogram
	droppedWindowsTotal     metric.Int64Counter

	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active MCP sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	m.meetingOperationsTotal, err = meter.Int64Counter(
		"meeting_operations_total",
		metric.WithDescription("Total number of meeting provider operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting_operations_total counter: %w", err)
	}

	m.meetingOperationDuration, err = meter.Float64Histogram(
		"meeting_operation_duration_seconds",
		metric.WithDescription("Meeting provider operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting_operation_duration_seconds histogram: %w", err)
	}

	m.pipelineRequestsTotal, err = meter.Int64Counter(
		"pipeline_requests_total",
		metric.WithDescription("Total number of STT and TTS requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_requests_total counter: %w", err)
	}

	m.pipelineRequestDuration, err = meter.Float64Histogram(
		"pipeline_request_duration_seconds",
		metric.WithDescription("STT and TTS request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_request_duration_seconds histogram: %w", err)
	}

	m.utteranceLatency, err = meter.Float64Histogram(
		"utterance_latency_seconds",
		metric.WithDescription("Latency from utterance end to last transcribed segment"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.2, 0.3, 0.5, 1.0, 2.0, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create utterance_latency_seconds histogram: %w", err)
	}

	m.droppedWindowsTotal, err = meter.Int64Counter(
		"audio_windows_dropped_total",
		metric.WithDescription("Audio windows dropped on full queues"),
		metric.WithUnit("{window}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio_windows_dropped_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status
// code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordMeetingOperation records a meeting provider operation.
//
// Parameters:
//   - platform: meeting platform name (GoogleMeet, Teams, Zoom)
//   - operation: operation type (join, leave, send_chat_message, mute, ...)
//   - status: "success" or "error"
//   - duration: time taken for the operation
func (m *Metrics) RecordMeetingOperation(ctx context.Context, platform, operation, status string, duration time.Duration) {
	if m.meetingOperationsTotal == nil || m.meetingOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrPlatform, platform),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.meetingOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.meetingOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPipelineRequest records an STT or TTS request.
//
// Parameters:
//   - stage: "stt" or "tts"
//   - service: backend service name (whisper, deepgram, kokoro, elevenlabs)
//   - status: "success" or "error"
//   - duration: time taken for the request
func (m *Metrics) RecordPipelineRequest(ctx context.Context, stage, service, status string, duration time.Duration) {
	if m.pipelineRequestsTotal == nil || m.pipelineRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStage, stage),
		attribute.String(attrService, service),
		attribute.String(attrStatus, status),
	}

	m.pipelineRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pipelineRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUtteranceLatency records the gap between an utterance ending and
// its last segment landing in the transcript.
func (m *Metrics) RecordUtteranceLatency(ctx context.Context, latency time.Duration) {
	if m.utteranceLatency == nil {
		return
	}
	m.utteranceLatency.Record(ctx, latency.Seconds())
}

// AddDroppedWindows counts audio windows dropped on a full queue.
func (m *Metrics) AddDroppedWindows(ctx context.Context, n int64) {
	if m.droppedWindowsTotal == nil {
		return
	}
	m.droppedWindowsTotal.Add(ctx, n)
}

// RecordToolInvocation records an MCP tool invocation with tool name,
// status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocationWithHost records an MCP tool invocation including
// the meeting host when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithHost(ctx context.Context, toolName, status, meetingHost string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && meetingHost != "" {
		attrs = append(attrs, attribute.String(attrHost, meetingHost))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
