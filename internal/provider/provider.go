// Package provider defines the meeting provider contract: joining and
// controlling a meeting plus access to its audio and video streams.
package provider

import (
	"context"
	"errors"

	"github.com/joinly-ai/joinly/internal/audio"
)

// ErrNotInMeeting is returned for meeting actions while no meeting is
// joined.
var ErrNotInMeeting = errors.New("not in a meeting")

// ErrNotSupported is returned when a provider or platform cannot perform
// the requested action.
var ErrNotSupported = errors.New("not supported by this provider")

// ChatMessage is one message scraped from the meeting chat.
type ChatMessage struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
	Sender    string `json:"sender,omitempty"`
}

// ChatHistory is the scraped meeting chat.
type ChatHistory struct {
	Messages []ChatMessage `json:"messages"`
}

// Participant is one entry of the meeting participant list.
type Participant struct {
	Name string `json:"name"`
	// Infos carries platform flags such as "You", "Meeting host" or the
	// mute state.
	Infos []string `json:"infos,omitempty"`
}

// Snapshot is a captured video frame.
type Snapshot struct {
	Data      []byte
	MediaType string
}

// AudioReader yields captured meeting audio as timestamped chunks.
type AudioReader interface {
	// Read blocks until the next chunk is available. It returns io.EOF
	// when the capture stream ends.
	Read(ctx context.Context) (audio.Chunk, error)
	Format() audio.Format
}

// AudioWriter plays PCM data into the meeting, typically through a
// virtual microphone.
type AudioWriter interface {
	Write(ctx context.Context, pcm []byte) error
	// ChunkSize is the preferred write size in bytes.
	ChunkSize() int
	Format() audio.Format
}

// VideoReader captures video frames of the meeting.
type VideoReader interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// MeetingProvider joins meetings and exposes their media streams.
// Implementations are safe for concurrent use; meeting actions return
// ErrNotInMeeting when no meeting is joined.
type MeetingProvider interface {
	// Start brings up the provider's devices; Stop tears them down.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Join(ctx context.Context, url, name, passcode string) error
	Leave(ctx context.Context) error
	SendChatMessage(ctx context.Context, message string) error
	GetChatHistory(ctx context.Context) (ChatHistory, error)
	GetParticipants(ctx context.Context) ([]Participant, error)
	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error

	AudioReader() AudioReader
	AudioWriter() AudioWriter
	VideoReader() VideoReader
}
