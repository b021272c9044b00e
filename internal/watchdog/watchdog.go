// Package watchdog polls a VNC endpoint and launches a viewer when the
// server comes up. Used to attach a debug view to the virtual display.
package watchdog

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"time"

	"log/slog"

	"github.com/joinly-ai/joinly/internal/logging"
)

// rfbBanner is sent by an RFB server directly after accept.
const rfbBanner = "RFB"

const (
	defaultInterval = 2 * time.Second
	probeTimeout    = time.Second
)

// Config configures the watchdog.
type Config struct {
	Host string
	Port int
	// Viewer is the viewer executable, resolved on PATH before the
	// poll loop starts.
	Viewer string
	// Interval is the poll interval.
	Interval time.Duration
}

// Watchdog watches host:port for an RFB banner and launches the viewer
// once per detection.
type Watchdog struct {
	cfg Config
	log *slog.Logger

	// launch is swappable for tests.
	launch func(ctx context.Context, viewerPath, target string) error
}

// New creates a watchdog.
func New(cfg Config) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	w := &Watchdog{
		cfg: cfg,
		log: logging.WithService(slog.Default(), "watchdog"),
	}
	w.launch = w.launchViewer
	return w
}

// Run polls until the context is canceled. It fails before the first
// probe when the viewer executable is not on PATH.
func (w *Watchdog) Run(ctx context.Context) error {
	viewerPath, err := exec.LookPath(w.cfg.Viewer)
	if err != nil {
		return fmt.Errorf("viewer %q not found on PATH: %w", w.cfg.Viewer, err)
	}

	target := net.JoinHostPort(w.cfg.Host, fmt.Sprintf("%d", w.cfg.Port))
	w.log.Info("watching for vnc server", "target", target, "viewer", viewerPath)

	launched := false
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if w.probe(target) {
			if !launched {
				w.log.Info("vnc server detected, launching viewer", "target", target)
				if err := w.launch(ctx, viewerPath, target); err != nil {
					w.log.Error("viewer launch failed", logging.Err(err))
				}
				launched = true
			}
		} else {
			launched = false
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// probe reports whether target answers with the RFB banner.
func (w *Watchdog) probe(target string) bool {
	conn, err := net.DialTimeout("tcp", target, probeTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(probeTimeout))
	banner := make([]byte, len(rfbBanner))
	if _, err := io.ReadFull(conn, banner); err != nil {
		return false
	}
	return string(banner) == rfbBanner
}

func (w *Watchdog) launchViewer(ctx context.Context, viewerPath, target string) error {
	cmd := exec.CommandContext(ctx, viewerPath, target)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start viewer: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			w.log.Warn("viewer exited", logging.Err(err))
		}
	}()
	return nil
}
