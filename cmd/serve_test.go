package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/config"
	"github.com/joinly-ai/joinly/internal/stt"
	"github.com/joinly-ai/joinly/internal/tts"
	"github.com/joinly-ai/joinly/internal/usage"
	"github.com/joinly-ai/joinly/internal/vad"
)

func TestMergeArgs(t *testing.T) {
	tests := []struct {
		name    string
		base    config.Args
		pairs   []string
		want    config.Args
		wantErr bool
	}{
		{
			name: "no pairs keeps base",
			base: config.Args{"model": "base"},
			want: config.Args{"model": "base"},
		},
		{
			name:  "pairs over nil base",
			pairs: []string{"model=small", "speed=1.2"},
			want:  config.Args{"model": "small", "speed": 1.2},
		},
		{
			name:  "pairs override base",
			base:  config.Args{"model": "base", "url": "http://localhost"},
			pairs: []string{"model=small"},
			want:  config.Args{"model": "small", "url": "http://localhost"},
		},
		{
			name:    "malformed pair",
			pairs:   []string{"model"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeArgs(tt.base, tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDetector(t *testing.T) {
	settings := config.Default()

	d, err := buildDetector(settings)
	require.NoError(t, err)
	assert.IsType(t, &vad.Hybrid{}, d)

	settings.VAD = config.VADEnergy
	d, err = buildDetector(settings)
	require.NoError(t, err)
	assert.IsType(t, &vad.Energy{}, d)

	settings.VADArgs = config.Args{"aggressiveness": 7.0}
	_, err = buildDetector(settings)
	assert.Error(t, err)

	settings.VAD = "silero"
	settings.VADArgs = nil
	_, err = buildDetector(settings)
	assert.ErrorContains(t, err, "unsupported vad service")
}

func TestBuildTranscriber(t *testing.T) {
	tracker := usage.NewTracker()
	settings := config.Default()

	tr, err := buildTranscriber(settings, config.Credentials{}, tracker)
	require.NoError(t, err)
	assert.IsType(t, &stt.Whisper{}, tr)

	settings.STT = config.STTDeepgram
	t.Setenv("DEEPGRAM_API_KEY", "")
	_, err = buildTranscriber(settings, config.Credentials{}, tracker)
	assert.ErrorIs(t, err, stt.ErrMissingAPIKey)

	// The credential from the environment snapshot is enough, no env
	// fallback needed inside the backend.
	tr, err = buildTranscriber(settings, config.Credentials{DeepgramAPIKey: "token"}, tracker)
	require.NoError(t, err)
	assert.IsType(t, &stt.Deepgram{}, tr)

	settings.STT = "vosk"
	_, err = buildTranscriber(settings, config.Credentials{}, tracker)
	assert.ErrorContains(t, err, "unsupported stt service")
}

func TestBuildSynthesizer(t *testing.T) {
	tracker := usage.NewTracker()
	settings := config.Default()

	s, err := buildSynthesizer(settings, config.Credentials{}, tracker)
	require.NoError(t, err)
	assert.IsType(t, &tts.Kokoro{}, s)

	settings.TTS = config.TTSElevenLabs
	t.Setenv("ELEVENLABS_API_KEY", "")
	_, err = buildSynthesizer(settings, config.Credentials{}, tracker)
	assert.ErrorIs(t, err, tts.ErrMissingElevenLabsKey)

	s, err = buildSynthesizer(settings, config.Credentials{ElevenLabsAPIKey: "token"}, tracker)
	require.NoError(t, err)
	assert.IsType(t, &tts.ElevenLabs{}, s)

	settings.TTS = "espeak"
	_, err = buildSynthesizer(settings, config.Credentials{}, tracker)
	assert.ErrorContains(t, err, "unsupported tts service")
}

func TestBuildMeetingProvider(t *testing.T) {
	settings := config.Default()
	p, err := buildMeetingProvider(settings)
	require.NoError(t, err)
	assert.NotNil(t, p)

	settings.MeetingProvider = "native"
	_, err = buildMeetingProvider(settings)
	assert.ErrorContains(t, err, "unsupported meeting provider")
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCmd()
	for _, name := range []string{
		"name", "lang", "transport", "host", "port",
		"vad", "vad-arg", "stt", "stt-arg", "tts", "tts-arg",
		"meeting-provider", "meeting-provider-arg",
		"vnc-server", "vnc-server-port", "device",
		"metrics-enabled", "metrics-addr", "config",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "client", "watchdog", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
