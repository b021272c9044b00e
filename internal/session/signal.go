package session

import (
	"context"
	"sync"
)

// Signal is a level-triggered flag that goroutines can wait on. The
// transcription controller raises it during silence; the speech
// controller waits on it before speaking and watches it for
// interruptions.
type Signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// NewSignal creates an unset signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set raises the signal and releases all waiters.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.ch)
}

// Clear lowers the signal.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return
	}
	s.set = false
	s.ch = make(chan struct{})
}

// IsSet reports whether the signal is raised.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Wait blocks until the signal is raised or the context is done.
func (s *Signal) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.set {
			s.mu.Unlock()
			return nil
		}
		ch := s.ch
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
