package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMeetingHost(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"google meet", "https://meet.google.com/abc-defg-hij", "meet.google.com"},
		{"zoom with passcode", "https://us02web.zoom.us/j/1234?pwd=secret", "us02web.zoom.us"},
		{"teams", "https://teams.microsoft.com/l/meetup-join/xyz", "teams.microsoft.com"},
		{"empty", "", "unknown"},
		{"not a url", "not a url", "unknown"},
		{"missing host", "/j/1234", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMeetingHost(tt.url))
		})
	}
}
