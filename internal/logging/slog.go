package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeySession   = "session"
	KeyTool      = "tool"
	KeyPlatform  = "platform"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeySpeaker   = "speaker"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options controls handler construction.
type Options struct {
	// Verbosity is the count of -v flags: 0 = info, 1 = debug, 2+ = debug
	// with source locations.
	Verbosity int

	// Quiet suppresses everything below error.
	Quiet bool

	// Plain selects the human-readable text handler instead of JSON.
	// JOINLY_LOGGING_PLAIN=true has the same effect.
	Plain bool

	// Writer receives the log output. Defaults to os.Stderr, which keeps
	// logs off stdout where the stdio MCP transport lives.
	Writer io.Writer
}

// Setup installs the default slog logger according to opts and returns it.
func Setup(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	switch {
	case opts.Quiet:
		level = slog.LevelError
	case opts.Verbosity >= 1:
		level = slog.LevelDebug
	}

	plain := opts.Plain
	if !plain {
		if v, err := strconv.ParseBool(os.Getenv("JOINLY_LOGGING_PLAIN")); err == nil {
			plain = v
		}
	}

	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbosity >= 2,
	}

	var handler slog.Handler
	if plain {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

// WithSession returns a logger with the session attribute set.
func WithSession(logger *slog.Logger, session string) *slog.Logger {
	return logger.With(slog.String(KeySession, session))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog attribute for the service name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Platform returns a slog attribute for the meeting platform name.
func Platform(platform string) slog.Attr {
	return slog.String(KeyPlatform, platform)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from
// output, so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
