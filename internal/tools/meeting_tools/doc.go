// Package meeting_tools registers the MCP tools that control the live
// meeting session: joining and leaving, speaking, chat, mute state,
// transcript access, and video snapshots.
package meeting_tools
