// Package resources provides the MCP resources for live meeting data:
// the compacted participant transcript, the raw transcript segments,
// and the current service usage report. Resource update notifications
// are driven by the session event bus.
package resources
