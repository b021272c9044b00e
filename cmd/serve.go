package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/joinly-ai/joinly/internal/config"
	"github.com/joinly-ai/joinly/internal/instrumentation"
	"github.com/joinly-ai/joinly/internal/logging"
	"github.com/joinly-ai/joinly/internal/provider"
	"github.com/joinly-ai/joinly/internal/provider/browser"
	"github.com/joinly-ai/joinly/internal/resources"
	"github.com/joinly-ai/joinly/internal/server"
	"github.com/joinly-ai/joinly/internal/session"
	"github.com/joinly-ai/joinly/internal/stt"
	"github.com/joinly-ai/joinly/internal/tools/meeting_tools"
	"github.com/joinly-ai/joinly/internal/tts"
	"github.com/joinly-ai/joinly/internal/usage"
	"github.com/joinly-ai/joinly/internal/vad"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		cfgFile string

		vadArgs      []string
		sttArgs      []string
		ttsArgs      []string
		providerArgs []string
	)

	// Flag targets; only flags the user actually set override the
	// config file and environment.
	flagSettings := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the joinly MCP server",
		Long: `Start the Model Context Protocol (MCP) server that joins video meetings
and provides meeting interaction tools for AI assistants.

Supports multiple transport types:
  - streamable-http: Streamable HTTP transport (default)
  - stdio: Standard input/output

Configuration precedence is flags, then JOINLY_* environment variables,
then the optional YAML config file.

Speech services:
  --vad {energy|hybrid}            voice activity detection
  --stt {whisper|deepgram}         transcription backend
  --tts {kokoro|elevenlabs|deepgram}  speech synthesis backend

Service arguments are passed as repeatable key=value pairs, e.g.
  joinly serve --stt whisper --stt-arg model=base --tts-arg speed=1.2

Provider credentials come from the environment: DEEPGRAM_API_KEY,
ELEVENLABS_API_KEY.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := assembleSettings(cmd, flagSettings, cfgFile, vadArgs, sttArgs, ttsArgs, providerArgs)
			if err != nil {
				return err
			}
			return runServe(settings)
		},
	}

	cmd.Flags().StringVarP(&flagSettings.Name, "name", "n", flagSettings.Name, "Participant name shown in the meeting. Can also use JOINLY_NAME env var.")
	cmd.Flags().StringVar(&flagSettings.Lang, "lang", flagSettings.Lang, "Language hint for transcription and synthesis. Can also use JOINLY_LANG env var.")
	cmd.Flags().StringVar(&flagSettings.Transport, "transport", flagSettings.Transport, "Transport type: streamable-http or stdio")
	cmd.Flags().StringVar(&flagSettings.Host, "host", flagSettings.Host, "HTTP server host (for streamable-http transport). Can also use JOINLY_SERVER_HOST env var.")
	cmd.Flags().IntVar(&flagSettings.Port, "port", flagSettings.Port, "HTTP server port (for streamable-http transport). Can also use JOINLY_SERVER_PORT env var.")
	cmd.Flags().StringVar(&flagSettings.VAD, "vad", flagSettings.VAD, "Voice activity detector: energy or hybrid")
	cmd.Flags().StringArrayVar(&vadArgs, "vad-arg", nil, "VAD argument as key=value (repeatable)")
	cmd.Flags().StringVar(&flagSettings.STT, "stt", flagSettings.STT, "Transcription service: whisper or deepgram")
	cmd.Flags().StringArrayVar(&sttArgs, "stt-arg", nil, "STT argument as key=value (repeatable)")
	cmd.Flags().StringVar(&flagSettings.TTS, "tts", flagSettings.TTS, "Speech synthesis service: kokoro, elevenlabs or deepgram")
	cmd.Flags().StringArrayVar(&ttsArgs, "tts-arg", nil, "TTS argument as key=value (repeatable)")
	cmd.Flags().StringVar(&flagSettings.MeetingProvider, "meeting-provider", flagSettings.MeetingProvider, "Meeting provider: browser")
	cmd.Flags().StringArrayVar(&providerArgs, "meeting-provider-arg", nil, "Meeting provider argument as key=value (repeatable)")
	cmd.Flags().BoolVar(&flagSettings.VNCServer, "vnc-server", flagSettings.VNCServer, "Mirror the virtual display over VNC for debugging")
	cmd.Flags().IntVar(&flagSettings.VNCServerPort, "vnc-server-port", flagSettings.VNCServerPort, "VNC server port")
	cmd.Flags().StringVar(&flagSettings.Device, "device", flagSettings.Device, "Inference device hint passed to local speech services. Can also use JOINLY_DEVICE env var.")
	cmd.Flags().BoolVar(&flagSettings.MetricsEnabled, "metrics-enabled", flagSettings.MetricsEnabled, "Enable the metrics server on a dedicated port")
	cmd.Flags().StringVar(&flagSettings.MetricsAddr, "metrics-addr", flagSettings.MetricsAddr, "Metrics server address")
	cmd.Flags().StringVar(&cfgFile, "config", "", "Path to a YAML settings file")

	return cmd
}

// assembleSettings layers the configuration sources: defaults, then the
// config file, then JOINLY_* environment variables, then explicit flags.
func assembleSettings(cmd *cobra.Command, flagSettings config.Settings, cfgFile string, vadArgs, sttArgs, ttsArgs, providerArgs []string) (config.Settings, error) {
	settings, err := config.LoadFile(config.Default(), cfgFile)
	if err != nil {
		return settings, err
	}
	settings, err = config.ApplyEnv(settings)
	if err != nil {
		return settings, err
	}
	settings.LoggingPlain = settings.LoggingPlain || loggingPlain

	overrides := map[string]func(){
		"name":             func() { settings.Name = flagSettings.Name },
		"lang":             func() { settings.Lang = flagSettings.Lang },
		"transport":        func() { settings.Transport = flagSettings.Transport },
		"host":             func() { settings.Host = flagSettings.Host },
		"port":             func() { settings.Port = flagSettings.Port },
		"vad":              func() { settings.VAD = flagSettings.VAD },
		"stt":              func() { settings.STT = flagSettings.STT },
		"tts":              func() { settings.TTS = flagSettings.TTS },
		"meeting-provider": func() { settings.MeetingProvider = flagSettings.MeetingProvider },
		"vnc-server":       func() { settings.VNCServer = flagSettings.VNCServer },
		"vnc-server-port":  func() { settings.VNCServerPort = flagSettings.VNCServerPort },
		"device":           func() { settings.Device = flagSettings.Device },
		"metrics-enabled":  func() { settings.MetricsEnabled = flagSettings.MetricsEnabled },
		"metrics-addr":     func() { settings.MetricsAddr = flagSettings.MetricsAddr },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	if settings.VADArgs, err = mergeArgs(settings.VADArgs, vadArgs); err != nil {
		return settings, fmt.Errorf("--vad-arg: %w", err)
	}
	if settings.STTArgs, err = mergeArgs(settings.STTArgs, sttArgs); err != nil {
		return settings, fmt.Errorf("--stt-arg: %w", err)
	}
	if settings.TTSArgs, err = mergeArgs(settings.TTSArgs, ttsArgs); err != nil {
		return settings, fmt.Errorf("--tts-arg: %w", err)
	}
	if settings.MeetingProviderArgs, err = mergeArgs(settings.MeetingProviderArgs, providerArgs); err != nil {
		return settings, fmt.Errorf("--meeting-provider-arg: %w", err)
	}

	return settings, settings.Validate()
}

// mergeArgs overlays key=value flag pairs onto args from the config file.
func mergeArgs(base config.Args, pairs []string) (config.Args, error) {
	if len(pairs) == 0 {
		return base, nil
	}
	parsed, err := config.ParseArgs(pairs)
	if err != nil {
		return base, err
	}
	if base == nil {
		return parsed, nil
	}
	for k, v := range parsed {
		base[k] = v
	}
	return base, nil
}

func runServe(settings config.Settings) error {
	setupLogging(settings.LoggingPlain)
	log := slog.Default()

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	instrProvider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	tracker := usage.NewTracker()

	meetingProvider, err := buildMeetingProvider(settings)
	if err != nil {
		return err
	}
	if err := meetingProvider.Start(shutdownCtx); err != nil {
		return fmt.Errorf("failed to start meeting provider: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := meetingProvider.Stop(stopCtx); err != nil {
			log.Error("meeting provider shutdown failed", logging.Err(err))
		}
	}()

	sess, err := buildSession(settings, meetingProvider, tracker, instrProvider)
	if err != nil {
		return err
	}

	serverContext, err := server.NewServerContext(shutdownCtx, server.ServerContextConfig{
		Name:            settings.Name,
		Lang:            settings.Lang,
		Session:         sess,
		Usage:           tracker,
		Instrumentation: instrProvider,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		sdCtx, sdCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer sdCancel()
		if err := serverContext.Shutdown(sdCtx); err != nil {
			log.Error("server context shutdown failed", logging.Err(err))
		}
	}()

	health := server.NewHealthChecker(serverContext)

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if settings.Transport != "stdio" && settings.MetricsEnabled && instrProvider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    settings.MetricsAddr,
			InstrumentationProvider: instrProvider,
			Health:                  health,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			log.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
		defer func() {
			sdCtx, sdCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer sdCancel()
			if err := metricsServer.Shutdown(sdCtx); err != nil {
				log.Error("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("joinly", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true), // Subscribe and listChanged
	)

	if err := meeting_tools.RegisterMeetingTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register meeting tools: %w", err)
	}
	if err := resources.RegisterMeetingResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register meeting resources: %w", err)
	}
	stopNotifier := resources.StartUpdateNotifier(mcpSrv, serverContext)
	defer stopNotifier()

	switch settings.Transport {
	case "stdio":
		return runStdioServer(shutdownCtx, mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, health, settings, log)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: streamable-http, stdio)", settings.Transport)
	}
}

// buildMeetingProvider constructs the configured meeting provider.
func buildMeetingProvider(settings config.Settings) (provider.MeetingProvider, error) {
	switch settings.MeetingProvider {
	case config.ProviderBrowser:
		args := settings.MeetingProviderArgs
		return browser.New(browser.Config{
			VNCServer:      settings.VNCServer,
			VNCPort:        settings.VNCServerPort,
			SnapshotWidth:  int(args.Float("snapshot_width", 0)),
			SnapshotHeight: int(args.Float("snapshot_height", 0)),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported meeting provider: %s", settings.MeetingProvider)
	}
}

// buildSession wires the speech pipeline from the configured service
// names and their argument maps.
func buildSession(settings config.Settings, meetingProvider provider.MeetingProvider, tracker *usage.Tracker, instrProvider *instrumentation.Provider) (*session.MeetingSession, error) {
	creds := config.CredentialsFromEnv()

	detector, err := buildDetector(settings)
	if err != nil {
		return nil, err
	}
	transcriber, err := buildTranscriber(settings, creds, tracker)
	if err != nil {
		return nil, err
	}
	synthesizer, err := buildSynthesizer(settings, creds, tracker)
	if err != nil {
		return nil, err
	}

	tc := session.NewTranscriptionController(meetingProvider.AudioReader(), detector, transcriber, session.TranscriptionConfig{})
	tc.SetMetrics(instrProvider.Metrics())
	sc := session.NewSpeechController(meetingProvider.AudioWriter(), synthesizer, tc.NoSpeech(), session.SpeechConfig{})

	return session.NewMeetingSession(meetingProvider, tc, sc), nil
}

func buildDetector(settings config.Settings) (vad.Detector, error) {
	aggressiveness := int(settings.VADArgs.Float("aggressiveness", 2))
	switch settings.VAD {
	case config.VADEnergy:
		return vad.NewEnergy(aggressiveness)
	case config.VADHybrid:
		return vad.NewHybrid(aggressiveness)
	default:
		return nil, fmt.Errorf("unsupported vad service: %s", settings.VAD)
	}
}

func buildTranscriber(settings config.Settings, creds config.Credentials, tracker *usage.Tracker) (stt.Transcriber, error) {
	args := settings.STTArgs
	switch settings.STT {
	case config.STTWhisper:
		return stt.NewWhisper(stt.WhisperConfig{
			URL:      args.String("url", ""),
			Model:    args.String("model", ""),
			Device:   settings.Device,
			Language: settings.Lang,
			Hotwords: []string{settings.Name},
			Tracker:  tracker,
		}), nil
	case config.STTDeepgram:
		return stt.NewDeepgram(stt.DeepgramConfig{
			APIKey:   creds.DeepgramAPIKey,
			URL:      args.String("url", ""),
			Model:    args.String("model", ""),
			Language: settings.Lang,
			Keyterms: []string{settings.Name},
			Tracker:  tracker,
		})
	default:
		return nil, fmt.Errorf("unsupported stt service: %s", settings.STT)
	}
}

func buildSynthesizer(settings config.Settings, creds config.Credentials, tracker *usage.Tracker) (tts.Synthesizer, error) {
	args := settings.TTSArgs
	switch settings.TTS {
	case config.TTSKokoro:
		return tts.NewKokoro(tts.KokoroConfig{
			URL:     args.String("url", ""),
			Voice:   args.String("voice", ""),
			Speed:   args.Float("speed", 0),
			Device:  settings.Device,
			Tracker: tracker,
		}), nil
	case config.TTSElevenLabs:
		return tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:   creds.ElevenLabsAPIKey,
			URL:      args.String("url", ""),
			VoiceID:  args.String("voice_id", ""),
			ModelID:  args.String("model_id", ""),
			Language: settings.Lang,
			Tracker:  tracker,
		})
	case config.TTSDeepgram:
		return tts.NewDeepgram(tts.DeepgramConfig{
			APIKey:   creds.DeepgramAPIKey,
			URL:      args.String("url", ""),
			Model:    args.String("model", ""),
			Language: settings.Lang,
			Tracker:  tracker,
		})
	default:
		return nil, fmt.Errorf("unsupported tts service: %s", settings.TTS)
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

// runStreamableHTTPServer serves the MCP endpoint under /mcp/ and the
// health probes on the same listener.
func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, health *server.HealthChecker, settings config.Settings, log *slog.Logger) error {
	httpServer := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", httpServer)
	mux.Handle("/mcp/", httpServer)
	health.RegisterHealthEndpoints(mux)

	addr := net.JoinHostPort(settings.Host, fmt.Sprintf("%d", settings.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		log.Info("mcp server listening", "addr", addr, "endpoint", "/mcp")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		health.SetReady(false)
		sdCtx, sdCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer sdCancel()
		if err := srv.Shutdown(sdCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}
