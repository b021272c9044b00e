package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/joinly-ai/joinly/internal/instrumentation"
	"github.com/joinly-ai/joinly/internal/session"
	"github.com/joinly-ai/joinly/internal/usage"
)

// ServerContext holds the shared state for the MCP server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	name string
	lang string

	session *session.MeetingSession
	usage   *usage.Tracker
	instr   *instrumentation.Provider
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// ServerContextConfig carries the dependencies for a ServerContext.
type ServerContextConfig struct {
	// Name is the display name the bot joins meetings with.
	Name string
	// Lang is the BCP 47 language hint passed to speech services.
	Lang string

	Session         *session.MeetingSession
	Usage           *usage.Tracker
	Instrumentation *instrumentation.Provider
	Audit           *instrumentation.AuditLogger
	Logger          *slog.Logger
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, cfg ServerContextConfig) (*ServerContext, error) {
	if cfg.Session == nil {
		return nil, errors.New("meeting session is required")
	}
	if cfg.Usage == nil {
		cfg.Usage = usage.NewTracker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = instrumentation.NewAuditLogger(cfg.Logger)
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		name:    cfg.Name,
		lang:    cfg.Lang,
		session: cfg.Session,
		usage:   cfg.Usage,
		instr:   cfg.Instrumentation,
		audit:   cfg.Audit,
		logger:  cfg.Logger,
	}, nil
}

// Context returns the server context. It is canceled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Name returns the participant name the bot uses.
func (sc *ServerContext) Name() string {
	return sc.name
}

// Lang returns the configured language hint.
func (sc *ServerContext) Lang() string {
	return sc.lang
}

// Session returns the meeting session.
func (sc *ServerContext) Session() *session.MeetingSession {
	return sc.session
}

// Usage returns the service usage tracker.
func (sc *ServerContext) Usage() *usage.Tracker {
	return sc.usage
}

// Metrics returns the metrics recorder. The zero value is returned when
// instrumentation is disabled, so callers never need a nil check.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.instr == nil {
		return &instrumentation.Metrics{}
	}
	return sc.instr.Metrics()
}

// Instrumentation returns the instrumentation provider, which may be nil.
func (sc *ServerContext) Instrumentation() *instrumentation.Provider {
	return sc.instr
}

// AuditLogger returns the audit logger for tool invocations.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown leaves any active meeting, flushes instrumentation, and
// cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	var errs []error
	if err := sc.session.LeaveMeeting(ctx); err != nil && !errors.Is(err, session.ErrNoMeetingJoined) {
		errs = append(errs, err)
	}
	if sc.instr != nil {
		if err := sc.instr.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	sc.cancel()
	return errors.Join(errs...)
}
