// Package session orchestrates a meeting: it wires the provider's audio
// to voice activity detection and transcription, serializes synthesized
// speech into the meeting and exposes the meeting actions behind a
// single MeetingSession.
package session
