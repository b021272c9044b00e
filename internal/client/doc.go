// Package client implements the conversational meeting client. It
// connects to a running joinly MCP server over streamable HTTP,
// subscribes to the live transcript, and drives a chat-completion model
// that responds in the meeting through the server's tools.
package client
