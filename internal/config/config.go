package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service names accepted by the session builder.
const (
	VADEnergy = "energy"
	VADHybrid = "hybrid"

	STTWhisper  = "whisper"
	STTDeepgram = "deepgram"

	TTSKokoro     = "kokoro"
	TTSElevenLabs = "elevenlabs"
	TTSDeepgram   = "deepgram"

	ProviderBrowser = "browser"
)

// Defaults.
const (
	DefaultName = "joinly"
	DefaultLang = "en"
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000

	DefaultVNCPort = 5900
)

// Args holds free-form key=value options for one pluggable service.
type Args map[string]any

// Settings is the full server configuration.
type Settings struct {
	Name string `yaml:"name"`
	Lang string `yaml:"lang"`

	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`

	VAD     string `yaml:"vad"`
	VADArgs Args   `yaml:"vad_args"`

	STT     string `yaml:"stt"`
	STTArgs Args   `yaml:"stt_args"`

	TTS     string `yaml:"tts"`
	TTSArgs Args   `yaml:"tts_args"`

	MeetingProvider     string `yaml:"meeting_provider"`
	MeetingProviderArgs Args   `yaml:"meeting_provider_args"`

	VNCServer     bool `yaml:"vnc_server"`
	VNCServerPort int  `yaml:"vnc_server_port"`

	Device string `yaml:"device"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`

	LoggingPlain bool `yaml:"logging_plain"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Name:            DefaultName,
		Lang:            DefaultLang,
		Transport:       "streamable-http",
		Host:            DefaultHost,
		Port:            DefaultPort,
		VAD:             VADHybrid,
		STT:             STTWhisper,
		TTS:             TTSKokoro,
		MeetingProvider: ProviderBrowser,
		VNCServerPort:   DefaultVNCPort,
		MetricsAddr:     ":9090",
	}
}

// LoadFile reads a YAML settings file over the given base settings.
// A missing path returns the base unchanged.
func LoadFile(base Settings, path string) (Settings, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return base, nil
}

// ApplyEnv overlays JOINLY_* environment variables onto the settings.
func ApplyEnv(s Settings) (Settings, error) {
	if v := os.Getenv("JOINLY_NAME"); v != "" {
		s.Name = v
	}
	if v := os.Getenv("JOINLY_LANG"); v != "" {
		s.Lang = v
	}
	if v := os.Getenv("JOINLY_SERVER_HOST"); v != "" {
		s.Host = v
	}
	if v := os.Getenv("JOINLY_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("JOINLY_SERVER_PORT: %w", err)
		}
		s.Port = port
	}
	if v := os.Getenv("JOINLY_DEVICE"); v != "" {
		s.Device = v
	}
	if v := os.Getenv("JOINLY_LOGGING_PLAIN"); v != "" {
		plain, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("JOINLY_LOGGING_PLAIN: %w", err)
		}
		s.LoggingPlain = plain
	}
	return s, nil
}

// Validate rejects unknown service names before the session is built.
func (s Settings) Validate() error {
	switch s.Transport {
	case "streamable-http", "stdio":
	default:
		return fmt.Errorf("unknown transport %q", s.Transport)
	}
	switch s.VAD {
	case VADEnergy, VADHybrid:
	default:
		return fmt.Errorf("unknown vad service %q", s.VAD)
	}
	switch s.STT {
	case STTWhisper, STTDeepgram:
	default:
		return fmt.Errorf("unknown stt service %q", s.STT)
	}
	switch s.TTS {
	case TTSKokoro, TTSElevenLabs, TTSDeepgram:
	default:
		return fmt.Errorf("unknown tts service %q", s.TTS)
	}
	if s.MeetingProvider != ProviderBrowser {
		return fmt.Errorf("unknown meeting provider %q", s.MeetingProvider)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	return nil
}

// ParseArgs parses repeated key=value service options. Values that parse
// as JSON keep their JSON type, everything else stays a string, so
// --stt-arg model_name=base and --vad-arg threshold=0.6 both work.
func ParseArgs(pairs []string) (Args, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(Args, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid service argument %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		args[key] = v
	}
	return args, nil
}

// String returns the string value for a key, or the fallback.
func (a Args) String(key, fallback string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return fallback
}

// Float returns the numeric value for a key, or the fallback. YAML
// decodes whole numbers as int, JSON as float64, so both are accepted.
func (a Args) Float(key string, fallback float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// Bool returns the boolean value for a key, or the fallback.
func (a Args) Bool(key string, fallback bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return fallback
}

// Credentials carries the speech service secrets read from the
// environment. Chat model keys are read where the model is built.
type Credentials struct {
	DeepgramAPIKey   string
	ElevenLabsAPIKey string
}

// CredentialsFromEnv reads the speech service API keys from the
// environment.
func CredentialsFromEnv() Credentials {
	return Credentials{
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
	}
}
