// Package cmd implements the command-line interface for joinly.
//
// This package provides the following commands:
//   - serve: Start the MCP server that joins and interacts with meetings
//   - client: Run a conversational client against a running joinly server
//   - watchdog: Launch a VNC viewer when the debug display comes up
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
