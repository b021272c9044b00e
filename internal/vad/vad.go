package vad

import (
	"fmt"

	"github.com/joinly-ai/joinly/internal/audio"
)

// Canonical pipeline format: 16 kHz float32 mono.
const (
	SampleRate = 16000
	// WindowSamples is 30 ms at the pipeline sample rate.
	WindowSamples = 480
)

// Format is the PCM format detectors operate on.
var Format = audio.Format{SampleRate: SampleRate, ByteDepth: audio.ByteDepth32}

// Detector classifies a single fixed-size window of float32 samples.
type Detector interface {
	IsSpeech(samples []float32) (bool, error)
	// Reset clears adaptive state between capture sessions.
	Reset()
}

// Window is one classified VAD window.
type Window struct {
	// Data is float32 little-endian PCM, WindowSamples samples long.
	Data []byte
	// TimeNS is the window start on the session clock.
	TimeNS int64
	// IsSpeech reports whether the detector classified the window as
	// voiced, or whether it immediately precedes a voiced window.
	IsSpeech bool
	// Speaker is the active speaker during capture, if known.
	Speaker string
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return Format.Seconds(len(w.Data))
}

// Stream buffers capture chunks into fixed windows and classifies each
// one. One silent window is held back, so when speech starts, the window
// directly before the onset is released flagged as speech too. Speech
// onsets often clip the first phoneme otherwise.
type Stream struct {
	det     Detector
	buf     []byte
	bufTime int64
	speaker string
	pending *Window
}

// NewStream creates a window stream over the given detector.
func NewStream(det Detector) *Stream {
	return &Stream{det: det}
}

// Push adds a capture chunk and returns the windows completed by it. The
// chunk data must already be in the pipeline format.
func (s *Stream) Push(chunk audio.Chunk) ([]Window, error) {
	windowBytes := WindowSamples * audio.ByteDepth32

	if len(s.buf) == 0 {
		s.bufTime = chunk.TimeNS
		s.speaker = chunk.Speaker
	}
	s.buf = append(s.buf, chunk.Data...)

	var out []Window
	for len(s.buf) >= windowBytes {
		data := make([]byte, windowBytes)
		copy(data, s.buf[:windowBytes])
		s.buf = s.buf[windowBytes:]

		w := Window{Data: data, TimeNS: s.bufTime, Speaker: s.speaker}
		s.bufTime += int64(float64(windowBytes) / float64(Format.BytesPerSecond()) * 1e9)
		s.speaker = chunk.Speaker

		speech, err := s.det.IsSpeech(audio.Samples32(data))
		if err != nil {
			return out, fmt.Errorf("vad window classify: %w", err)
		}
		w.IsSpeech = speech

		out = append(out, s.release(w)...)
	}
	return out, nil
}

// release applies the one-window look-back. Silent windows are delayed by
// one step; when the next window is speech, the held window is promoted.
func (s *Stream) release(w Window) []Window {
	if w.IsSpeech {
		if s.pending != nil {
			held := *s.pending
			held.IsSpeech = true
			s.pending = nil
			return []Window{held, w}
		}
		return []Window{w}
	}

	var out []Window
	if s.pending != nil {
		out = append(out, *s.pending)
	}
	s.pending = &w
	return out
}

// Flush releases the held window, if any, and resets the buffers. Called
// when capture stops.
func (s *Stream) Flush() []Window {
	var out []Window
	if s.pending != nil {
		out = append(out, *s.pending)
		s.pending = nil
	}
	s.buf = nil
	s.det.Reset()
	return out
}
