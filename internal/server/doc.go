// Package server provides the MCP server context, health endpoints,
// and the dedicated Prometheus metrics server.
//
// ServerContext owns the long-lived pieces the MCP handlers share: the
// meeting session, the usage tracker, and the instrumentation provider.
// It is created once at startup and shut down exactly once.
//
// HealthChecker exposes /healthz and /readyz handlers suitable for
// container probes. MetricsServer serves /metrics on its own port so
// operational metrics never ride on the MCP transport.
package server
