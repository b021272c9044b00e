package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/provider"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://meet.google.com/abc-defg-hij", "GoogleMeet"},
		{"meet.google.com/abc-defg-hij", "GoogleMeet"},
		{"https://teams.microsoft.com/l/meetup-join/xyz", "Teams"},
		{"https://teams.live.com/meet/12345", "Teams"},
		{"https://us02web.zoom.us/j/123456789", "Zoom"},
		{"https://zoom.us/j/123456789?pwd=abc", "Zoom"},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			c, err := Select(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Name())
		})
	}
}

func TestSelectUnsupported(t *testing.T) {
	_, err := Select("https://example.com/meeting")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrNotSupported)
	assert.Contains(t, err.Error(), "GoogleMeet, Teams, Zoom")
}

func TestCheckMessageLength(t *testing.T) {
	assert.NoError(t, checkMessageLength(strings.Repeat("a", MaxChatMessageLength)))

	err := checkMessageLength(strings.Repeat("a", MaxChatMessageLength+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length of 500")
}

func TestZoomJoinURLRewrite(t *testing.T) {
	assert.Equal(t, "https://us02web.zoom.us/wc/join/123456789",
		zoomJoinPath.ReplaceAllString("https://us02web.zoom.us/j/123456789", "/wc/join/$1"))
}

func TestZoomPasscodeFromURL(t *testing.T) {
	assert.Equal(t, "secret", passcodeFromURL("https://zoom.us/wc/join/1?pwd=token.1secret"))
	assert.Equal(t, "plain", passcodeFromURL("https://zoom.us/wc/join/1?pwd=plain"))
	assert.Equal(t, "", passcodeFromURL("https://zoom.us/wc/join/1"))
}
