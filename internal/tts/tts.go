// Package tts synthesizes speech from text. Text is split into
// sentences and synthesized sentence by sentence, so playback can start
// before the full text is rendered and an interruption can report which
// sentences were already spoken.
package tts

import (
	"context"
	"strings"
	"unicode"

	"github.com/joinly-ai/joinly/internal/audio"
)

// SampleRate is the output rate shared by all synthesizers.
const SampleRate = 24000

// Format is the PCM format of synthesized segments.
var Format = audio.Format{SampleRate: SampleRate, ByteDepth: audio.ByteDepth16}

// Segment pairs synthesized audio with its source text.
type Segment struct {
	Text string
	PCM  []byte
}

// Duration returns the audio length in seconds.
func (s Segment) Duration() float64 {
	return Format.Seconds(len(s.PCM))
}

// Synthesizer streams synthesized speech for a text. The segment channel
// is closed when synthesis finishes; the error channel then carries at
// most one error.
type Synthesizer interface {
	Stream(ctx context.Context, text string) (<-chan Segment, <-chan error)
}

// maxSentenceLen bounds a single synthesis request. Longer sentences are
// split at a word boundary.
const maxSentenceLen = 400

// SplitSentences splits text into sentence-sized synthesis units,
// keeping the terminal punctuation with each sentence.
func SplitSentences(text string) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s != "" {
			out = append(out, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if isSentenceEnd(r) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			flush()
		}
	}
	flush()

	var bounded []string
	for _, s := range out {
		bounded = append(bounded, splitLong(s)...)
	}
	return bounded
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func splitLong(s string) []string {
	if len(s) <= maxSentenceLen {
		return []string{s}
	}
	cut := strings.LastIndex(s[:maxSentenceLen], " ")
	if cut <= 0 {
		cut = maxSentenceLen
	}
	head := strings.TrimSpace(s[:cut])
	rest := strings.TrimSpace(s[cut:])
	return append([]string{head}, splitLong(rest)...)
}
