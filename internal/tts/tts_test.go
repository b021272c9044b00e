package tts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple sentences",
			text: "Hello there. How are you? Great!",
			want: []string{"Hello there.", "How are you?", "Great!"},
		},
		{
			name: "newlines split",
			text: "First line\nSecond line",
			want: []string{"First line", "Second line"},
		},
		{
			name: "decimal point is not a boundary",
			text: "The value is 3.14 exactly.",
			want: []string{"The value is 3.14 exactly."},
		},
		{
			name: "trailing text without punctuation",
			text: "One. And then some",
			want: []string{"One.", "And then some"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitSentences(tc.text))
		})
	}
}

func TestSplitSentencesBoundsLength(t *testing.T) {
	long := strings.Repeat("word ", 200) + "end."
	parts := SplitSentences(long)

	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), maxSentenceLen)
	}
	assert.Equal(t, strings.Fields(long), strings.Fields(strings.Join(parts, " ")), "no words lost")
}

func TestSegmentDuration(t *testing.T) {
	// One second of 24 kHz int16 PCM.
	seg := Segment{PCM: make([]byte, SampleRate*2)}
	assert.InDelta(t, 1.0, seg.Duration(), 1e-9)
}
