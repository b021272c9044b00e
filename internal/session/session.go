package session

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"github.com/joinly-ai/joinly/internal/events"
	"github.com/joinly-ai/joinly/internal/logging"
	"github.com/joinly-ai/joinly/internal/provider"
	"github.com/joinly-ai/joinly/internal/transcript"
)

// ErrNoMeetingJoined reports access to meeting state before a join.
var ErrNoMeetingJoined = errors.New("no meeting joined")

// MeetingSession orchestrates the provider and the transcription and
// speech controllers. Safe for concurrent use.
type MeetingSession struct {
	provider      provider.MeetingProvider
	transcription *TranscriptionController
	speech        *SpeechController
	bus           *events.Bus
	log           *slog.Logger

	mu          sync.RWMutex
	clock       *Clock
	transcript  *transcript.Transcript
	joined      bool
	unmuteUnsub events.UnsubscribeFunc
}

// NewMeetingSession creates a session over the given provider and
// controllers.
func NewMeetingSession(p provider.MeetingProvider, tc *TranscriptionController, sc *SpeechController) *MeetingSession {
	return &MeetingSession{
		provider:      p,
		transcription: tc,
		speech:        sc,
		bus:           events.NewBus(),
		log:           logging.WithService(slog.Default(), "session"),
	}
}

// Subscribe registers a handler for pipeline events and returns a
// function that removes it.
func (s *MeetingSession) Subscribe(t events.Type, handler events.Handler) events.UnsubscribeFunc {
	return s.bus.Subscribe(t, handler)
}

// Transcript returns the live transcript of the current meeting.
func (s *MeetingSession) Transcript() (*transcript.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transcript == nil {
		return nil, ErrNoMeetingJoined
	}
	return s.transcript, nil
}

// MeetingSeconds returns the current meeting time in seconds.
func (s *MeetingSession) MeetingSeconds() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clock == nil {
		return 0, ErrNoMeetingJoined
	}
	return s.clock.Seconds(), nil
}

// JoinMeeting joins the meeting, resets clock and transcript and starts
// the pipeline. The microphone is unmuted once the first segment is
// transcribed, so the bot does not show up unmuted during onboarding
// screens.
func (s *MeetingSession) JoinMeeting(ctx context.Context, url, name, passcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.provider.Join(ctx, url, name, passcode); err != nil {
		return err
	}

	s.clock = NewClock()
	s.transcript = transcript.New()
	s.joined = true

	var once sync.Once
	subscribed := make(chan struct{})
	var unsubscribe events.UnsubscribeFunc
	unsubscribe = s.bus.Subscribe(events.TypeSegment, func() {
		once.Do(func() {
			<-subscribed
			unsubscribe()
			if err := s.provider.Unmute(context.Background()); err != nil {
				s.log.Warn("unmute after first segment failed", logging.Err(err))
			}
		})
	})
	s.unmuteUnsub = unsubscribe
	close(subscribed)

	if err := s.transcription.Start(ctx, s.clock, s.transcript, s.bus); err != nil {
		return err
	}
	if err := s.speech.Start(ctx, s.clock, s.transcript, s.bus); err != nil {
		s.transcription.Stop()
		return err
	}
	return nil
}

// LeaveMeeting leaves the meeting and stops the pipeline. The transcript
// stays readable after leaving.
func (s *MeetingSession) LeaveMeeting(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.joined {
		return ErrNoMeetingJoined
	}
	err := s.provider.Leave(ctx)
	s.transcription.Stop()
	s.speech.Stop()
	// Drop a pending first-segment unmute so it cannot fire in a later
	// meeting.
	if s.unmuteUnsub != nil {
		s.unmuteUnsub()
		s.unmuteUnsub = nil
	}
	s.joined = false
	return err
}

// SpeakText speaks the text into the meeting, blocking until playback
// finishes or is interrupted.
func (s *MeetingSession) SpeakText(ctx context.Context, text string) error {
	return s.speech.SpeakText(ctx, text, false)
}

// SendChatMessage sends a message into the meeting chat.
func (s *MeetingSession) SendChatMessage(ctx context.Context, message string) error {
	return s.provider.SendChatMessage(ctx, message)
}

// GetChatHistory returns the meeting chat history.
func (s *MeetingSession) GetChatHistory(ctx context.Context) (provider.ChatHistory, error) {
	return s.provider.GetChatHistory(ctx)
}

// GetParticipants returns the current meeting participants.
func (s *MeetingSession) GetParticipants(ctx context.Context) ([]provider.Participant, error) {
	return s.provider.GetParticipants(ctx)
}

// GetVideoSnapshot captures a frame of the meeting video.
func (s *MeetingSession) GetVideoSnapshot(ctx context.Context) (provider.Snapshot, error) {
	return s.provider.VideoReader().Snapshot(ctx)
}

// Mute mutes the bot in the meeting.
func (s *MeetingSession) Mute(ctx context.Context) error {
	return s.provider.Mute(ctx)
}

// Unmute unmutes the bot in the meeting.
func (s *MeetingSession) Unmute(ctx context.Context) error {
	return s.provider.Unmute(ctx)
}
