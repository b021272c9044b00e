package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func metricsForTest(t *testing.T, detailedLabels bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"), detailedLabels)
	require.NoError(t, err)
	return m, reader
}

func collectedNames(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			names[metric.Name] = true
		}
	}
	return names
}

func TestMetricsRecording(t *testing.T) {
	m, reader := metricsForTest(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "POST", "/mcp", 200, 5*time.Millisecond)
	m.RecordMeetingOperation(ctx, "GoogleMeet", OperationJoin, StatusSuccess, 2*time.Second)
	m.RecordPipelineRequest(ctx, StageSTT, "whisper", StatusSuccess, 150*time.Millisecond)
	m.RecordPipelineRequest(ctx, StageTTS, "kokoro", StatusError, 80*time.Millisecond)
	m.RecordUtteranceLatency(ctx, 120*time.Millisecond)
	m.AddDroppedWindows(ctx, 3)
	m.RecordToolInvocation(ctx, "join_meeting", StatusSuccess, time.Second)
	m.IncrementActiveSessions(ctx)
	m.DecrementActiveSessions(ctx)

	names := collectedNames(t, reader)
	for _, want := range []string{
		"http_requests_total",
		"http_request_duration_seconds",
		"active_sessions",
		"meeting_operations_total",
		"meeting_operation_duration_seconds",
		"pipeline_requests_total",
		"pipeline_request_duration_seconds",
		"utterance_latency_seconds",
		"audio_windows_dropped_total",
		"mcp_tool_invocations_total",
		"mcp_tool_duration_seconds",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestMetricsZeroValueIsNoop(t *testing.T) {
	var m Metrics
	ctx := context.Background()

	// Must not panic with uninitialized instruments.
	m.RecordHTTPRequest(ctx, "GET", "/health", 200, time.Millisecond)
	m.RecordMeetingOperation(ctx, "Zoom", OperationLeave, StatusSuccess, time.Second)
	m.RecordPipelineRequest(ctx, StageSTT, "deepgram", StatusSuccess, time.Second)
	m.RecordUtteranceLatency(ctx, time.Millisecond)
	m.AddDroppedWindows(ctx, 1)
	m.RecordToolInvocation(ctx, "speak_text", StatusError, time.Second)
	m.RecordToolInvocationWithHost(ctx, "join_meeting", StatusSuccess, "meet.google.com", time.Second)
	m.IncrementActiveSessions(ctx)
	m.DecrementActiveSessions(ctx)
}

func TestRecordToolInvocationWithHost(t *testing.T) {
	ctx := context.Background()

	findToolAttrs := func(reader *sdkmetric.ManualReader) []map[string]string {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))

		var out []map[string]string
		for _, scope := range rm.ScopeMetrics {
			for _, metric := range scope.Metrics {
				if metric.Name != "mcp_tool_invocations_total" {
					continue
				}
				sum, ok := metric.Data.(metricdata.Sum[int64])
				if !ok {
					continue
				}
				for _, dp := range sum.DataPoints {
					attrs := map[string]string{}
					for _, kv := range dp.Attributes.ToSlice() {
						attrs[string(kv.Key)] = kv.Value.AsString()
					}
					out = append(out, attrs)
				}
			}
		}
		return out
	}

	t.Run("host label omitted by default", func(t *testing.T) {
		m, reader := metricsForTest(t, false)
		m.RecordToolInvocationWithHost(ctx, "join_meeting", StatusSuccess, "meet.google.com", time.Second)

		points := findToolAttrs(reader)
		require.Len(t, points, 1)
		assert.NotContains(t, points[0], "host")
	})

	t.Run("host label with detailed labels", func(t *testing.T) {
		m, reader := metricsForTest(t, true)
		m.RecordToolInvocationWithHost(ctx, "join_meeting", StatusSuccess, "meet.google.com", time.Second)

		points := findToolAttrs(reader)
		require.Len(t, points, 1)
		assert.Equal(t, "meet.google.com", points[0]["host"])
	})
}
