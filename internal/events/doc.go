// Package events implements the in-process event bus that connects the
// transcription pipeline to transcript resource subscribers. Handlers are
// invoked asynchronously; a failing handler never blocks or breaks the
// publisher.
package events
