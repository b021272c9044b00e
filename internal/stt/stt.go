// Package stt turns streams of classified audio windows into transcript
// segments. One Stream call covers one utterance: the caller feeds VAD
// windows and receives timed, speaker-attributed segments.
package stt

import (
	"context"

	"github.com/joinly-ai/joinly/internal/transcript"
	"github.com/joinly-ai/joinly/internal/vad"
)

// Transcriber streams transcription for a single utterance. Segment
// times are seconds on the same clock as the windows' TimeNS. The
// segment channel is closed when the window channel closes and all
// pending segments are delivered; the error channel then carries at
// most one error.
type Transcriber interface {
	Stream(ctx context.Context, windows <-chan vad.Window) (<-chan transcript.Segment, <-chan error)
}

// minSpeakerCoverage is the share of voiced audio a speaker must cover
// to be attributed to a segment.
const minSpeakerCoverage = 0.1

// dominantSpeaker returns the speaker with the most voiced audio in the
// given windows, or "" when no speaker covers at least a tenth of it.
func dominantSpeaker(windows []vad.Window) string {
	var total float64
	voiced := make(map[string]float64)
	for _, w := range windows {
		if !w.IsSpeech {
			continue
		}
		d := w.Duration()
		total += d
		if w.Speaker != "" {
			voiced[w.Speaker] += d
		}
	}
	if total == 0 {
		return ""
	}

	var best string
	var bestDur float64
	for name, d := range voiced {
		if d > bestDur {
			best, bestDur = name, d
		}
	}
	if bestDur/total < minSpeakerCoverage {
		return ""
	}
	return best
}

// clamp bounds a segment time to the utterance duration.
func clamp(t, max float64) float64 {
	if t < 0 {
		return 0
	}
	if t > max {
		return max
	}
	return t
}
