package device

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"log/slog"
)

// VirtualDisplay runs an Xvfb display, optionally mirrored by an x11vnc
// server for debugging.
type VirtualDisplay struct {
	env *Env

	Width  int
	Height int
	Depth  int

	VNCServer bool
	VNCPort   int

	displayName string
	xvfb        *exec.Cmd
	vnc         *exec.Cmd
}

// NewVirtualDisplay creates a 1280x720 display.
func NewVirtualDisplay(env *Env) *VirtualDisplay {
	return &VirtualDisplay{env: env, Width: 1280, Height: 720, Depth: 24}
}

// Start launches Xvfb and reads the assigned display number.
func (d *VirtualDisplay) Start(ctx context.Context) error {
	if d.xvfb != nil {
		return fmt.Errorf("virtual display already started")
	}
	bin, err := lookExecutable("Xvfb")
	if err != nil {
		return err
	}

	d.env.Set("XDG_SESSION_TYPE", "x11")
	d.env.Unset("WAYLAND_DISPLAY")

	cmd := exec.Command(bin,
		"-displayfd", "1",
		"-screen", "0", fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.Depth),
		"-nolisten", "tcp",
	)
	cmd.Env = d.env.List()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("start Xvfb: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start Xvfb: %w", err)
	}
	d.xvfb = cmd

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil {
		stopProcess(cmd)
		d.xvfb = nil
		return fmt.Errorf("read Xvfb display number: %w", err)
	}
	d.displayName = ":" + strings.TrimSpace(line)
	d.env.Set("DISPLAY", d.displayName)
	slog.Debug("virtual display started", "display", d.displayName)

	if d.VNCServer {
		if err := d.startVNC(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *VirtualDisplay) startVNC(_ context.Context) error {
	bin, err := lookExecutable("x11vnc")
	if err != nil {
		return err
	}
	args := []string{"-display", d.displayName, "-forever", "-nopw", "-shared"}
	if d.VNCPort > 0 {
		args = append(args, "-rfbport", strconv.Itoa(d.VNCPort))
	}
	cmd := exec.Command(bin, args...)
	cmd.Env = d.env.List()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start x11vnc: %w", err)
	}
	d.vnc = cmd
	slog.Debug("vnc server started", "display", d.displayName, "port", d.VNCPort)
	return nil
}

// Stop terminates the VNC server and the display.
func (d *VirtualDisplay) Stop(_ context.Context) error {
	if d.vnc != nil {
		stopProcess(d.vnc)
		d.vnc = nil
	}
	if d.xvfb != nil {
		stopProcess(d.xvfb)
		d.xvfb = nil
	}
	if d.env.Get("DISPLAY") == d.displayName {
		d.env.Unset("DISPLAY")
	}
	return nil
}

// DisplayName returns the X display name, e.g. ":99".
func (d *VirtualDisplay) DisplayName() string {
	return d.displayName
}
