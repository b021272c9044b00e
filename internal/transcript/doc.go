// Package transcript holds the live meeting transcript: timestamped,
// speaker-attributed segments produced by the transcription pipeline.
//
// The transcript is an ordered, deduplicated set. Concurrent STT streams add
// segments while MCP clients read slices of it, so all operations are safe
// for concurrent use. Derived views (Before, After, Compact, WithRole)
// return copies and never mutate the source.
package transcript
