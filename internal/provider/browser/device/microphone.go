package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/joinly-ai/joinly/internal/audio"
)

const microphoneChunkMS = 10

// VirtualMicrophone is a pipe source the browser captures as its
// microphone. Writes are paced to real time so the source never starves
// or overruns.
type VirtualMicrophone struct {
	pulse  *PulseServer
	env    *Env
	format audio.Format

	sourceName string
	dir        string
	fifo       *os.File
	moduleID   int
	playedNS   int64
	startedAt  time.Time
}

// NewVirtualMicrophone creates a virtual microphone at the synthesis
// rate.
func NewVirtualMicrophone(pulse *PulseServer, env *Env) *VirtualMicrophone {
	return &VirtualMicrophone{
		pulse:  pulse,
		env:    env,
		format: audio.Format{SampleRate: 24000, ByteDepth: audio.ByteDepth16},
	}
}

// Start creates the FIFO and loads the pipe source module.
func (m *VirtualMicrophone) Start(ctx context.Context) error {
	if m.fifo != nil {
		return fmt.Errorf("virtual microphone already started")
	}

	dir, err := os.MkdirTemp("", "virtmic_")
	if err != nil {
		return fmt.Errorf("create microphone dir: %w", err)
	}
	m.dir = dir
	fifoPath := filepath.Join(dir, "fifo.pcm")
	if err := syscall.Mkfifo(fifoPath, 0o600); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("create microphone fifo: %w", err)
	}

	m.sourceName = "virtmic." + uuid.NewString()
	m.moduleID, err = m.pulse.LoadModule(ctx, "module-pipe-source",
		"source_name="+m.sourceName,
		"file="+fifoPath,
		fmt.Sprintf("rate=%d", m.format.SampleRate),
		"format=s16le",
		"channels=1",
	)
	if err != nil {
		os.RemoveAll(dir)
		return err
	}

	// O_RDWR so opening does not block on the module attaching.
	m.fifo, err = os.OpenFile(fifoPath, os.O_RDWR, 0)
	if err != nil {
		_ = m.pulse.UnloadModule(ctx, m.moduleID)
		os.RemoveAll(dir)
		return fmt.Errorf("open microphone fifo: %w", err)
	}

	m.env.Set("PULSE_SOURCE", m.sourceName)
	m.startedAt = time.Now()
	slog.Debug("virtual microphone ready", "source", m.sourceName)
	return nil
}

// Stop unloads the source and removes the FIFO.
func (m *VirtualMicrophone) Stop(ctx context.Context) error {
	if m.fifo == nil {
		return nil
	}
	m.fifo.Close()
	m.fifo = nil

	if err := m.pulse.UnloadModule(ctx, m.moduleID); err != nil {
		slog.Warn("unload virtual microphone", "error", err)
	}
	if m.env.Get("PULSE_SOURCE") == m.sourceName {
		m.env.Unset("PULSE_SOURCE")
	}
	os.RemoveAll(m.dir)
	m.playedNS = 0
	return nil
}

// Format returns the playback format.
func (m *VirtualMicrophone) Format() audio.Format {
	return m.format
}

// ChunkSize is the preferred write size, 10ms of audio.
func (m *VirtualMicrophone) ChunkSize() int {
	return m.format.SampleRate * microphoneChunkMS / 1000 * m.format.ByteDepth
}

// Write plays PCM into the source, pacing against the wall clock so a
// caller can stream faster than real time without flooding the pipe.
func (m *VirtualMicrophone) Write(ctx context.Context, pcm []byte) error {
	if m.fifo == nil {
		return fmt.Errorf("virtual microphone not started")
	}

	// If playback fell behind the wall clock (silence between jobs),
	// restart pacing from now.
	elapsed := time.Since(m.startedAt).Nanoseconds()
	if m.playedNS < elapsed {
		m.playedNS = elapsed
	}

	ahead := time.Duration(m.playedNS-elapsed) * time.Nanosecond
	if wait := ahead - 50*time.Millisecond; wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if _, err := m.fifo.Write(pcm); err != nil {
		return fmt.Errorf("write microphone audio: %w", err)
	}
	m.playedNS += int64(m.format.Seconds(len(pcm)) * 1e9)
	return nil
}
