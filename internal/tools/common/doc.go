// Package common provides shared utilities for MCP tool implementations.
// It wraps tool handlers with tracing, metrics, and audit logging so the
// individual tool packages stay focused on their domain logic.
package common
