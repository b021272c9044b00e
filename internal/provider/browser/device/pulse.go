package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"log/slog"
)

// PulseServer runs a private PulseAudio daemon under a temporary runtime
// directory and loads/unloads modules on it.
type PulseServer struct {
	env *Env

	runtimeDir string
	socketPath string
	cmd        *exec.Cmd
}

// NewPulseServer creates a pulse server bound to the shared environment.
func NewPulseServer(env *Env) *PulseServer {
	return &PulseServer{env: env}
}

// Start launches the daemon and waits for its native socket.
func (p *PulseServer) Start(ctx context.Context) error {
	if p.cmd != nil {
		return fmt.Errorf("pulse server already started")
	}
	bin, err := lookExecutable("pulseaudio")
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "pulseserver_")
	if err != nil {
		return fmt.Errorf("create pulse runtime dir: %w", err)
	}
	p.runtimeDir = dir
	p.socketPath = filepath.Join(dir, "native")
	p.env.Set("PULSE_RUNTIME_PATH", dir)
	p.env.Set("PULSE_SERVER", "unix:"+p.socketPath)
	p.env.Set("PULSE_DISABLE_AUTOSPAWN", "1")

	cmd := exec.Command(bin, "--daemonize=no", "--exit-idle-time=-1", "--file=/dev/null")
	cmd.Env = p.env.List()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("start pulseaudio: %w", err)
	}
	p.cmd = cmd

	waitForPath(ctx, p.socketPath)
	slog.Debug("pulse server started", "socket", p.socketPath)
	return nil
}

// Stop terminates the daemon and removes its runtime directory.
func (p *PulseServer) Stop(ctx context.Context) error {
	if p.cmd == nil {
		return nil
	}
	stopProcess(p.cmd)
	p.cmd = nil

	p.env.Unset("PULSE_RUNTIME_PATH")
	p.env.Unset("PULSE_SERVER")
	p.env.Unset("PULSE_DISABLE_AUTOSPAWN")
	if p.runtimeDir != "" {
		os.RemoveAll(p.runtimeDir)
		p.runtimeDir = ""
	}
	return nil
}

// LoadModule loads a pulse module and returns its id.
func (p *PulseServer) LoadModule(ctx context.Context, module string, args ...string) (int, error) {
	bin, err := lookExecutable("pactl")
	if err != nil {
		return 0, err
	}
	cmd := exec.CommandContext(ctx, bin, append([]string{"load-module", module}, args...)...)
	cmd.Env = p.env.List()

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("load pulse module %s: %w: %s", module, err, strings.TrimSpace(stderr.String()))
	}
	id, err := strconv.Atoi(strings.TrimSpace(out.String()))
	if err != nil {
		return 0, fmt.Errorf("parse pulse module id %q: %w", out.String(), err)
	}
	return id, nil
}

// UnloadModule unloads a previously loaded module.
func (p *PulseServer) UnloadModule(ctx context.Context, id int) error {
	bin, err := lookExecutable("pactl")
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, bin, "unload-module", strconv.Itoa(id))
	cmd.Env = p.env.List()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("unload pulse module %d: %w", id, err)
	}
	return nil
}

// stopProcess terminates a child, escalating to kill when it ignores the
// signal.
func stopProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}
