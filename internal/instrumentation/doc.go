// Package instrumentation provides OpenTelemetry metrics and tracing for
// the joinly MCP server.
//
// Metrics cover the MCP surface (http_requests_total, active_sessions,
// mcp_tool_invocations_total, mcp_tool_duration_seconds), meeting
// provider operations (meeting_operations_total,
// meeting_operation_duration_seconds) and the audio pipeline
// (pipeline_requests_total, pipeline_request_duration_seconds,
// utterance_latency_seconds, audio_windows_dropped_total).
//
// Configuration comes from environment variables:
//   - INSTRUMENTATION_ENABLED: enable/disable (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate 0.0 to 1.0 (default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: joinly)
package instrumentation
