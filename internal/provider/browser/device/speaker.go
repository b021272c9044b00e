package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"log/slog"

	"github.com/google/uuid"

	"github.com/joinly-ai/joinly/internal/audio"
)

const speakerFramesPerChunk = 512

// VirtualSpeaker is a pipe sink the browser plays meeting audio into.
// Reads deliver fixed-size float32 chunks stamped with a monotonic
// stream time derived from the byte count.
type VirtualSpeaker struct {
	pulse  *PulseServer
	env    *Env
	format audio.Format

	sinkName string
	dir      string
	fifo     *os.File
	moduleID int
	readNS   int64
}

// NewVirtualSpeaker creates a virtual speaker at the pipeline capture
// rate.
func NewVirtualSpeaker(pulse *PulseServer, env *Env) *VirtualSpeaker {
	return &VirtualSpeaker{
		pulse:  pulse,
		env:    env,
		format: audio.Format{SampleRate: 16000, ByteDepth: audio.ByteDepth32},
	}
}

// Start creates the FIFO and loads the pipe sink module.
func (s *VirtualSpeaker) Start(ctx context.Context) error {
	if s.fifo != nil {
		return fmt.Errorf("virtual speaker already started")
	}

	dir, err := os.MkdirTemp("", "virtsink_")
	if err != nil {
		return fmt.Errorf("create speaker dir: %w", err)
	}
	s.dir = dir
	fifoPath := filepath.Join(dir, "fifo.pcm")
	if err := syscall.Mkfifo(fifoPath, 0o600); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("create speaker fifo: %w", err)
	}

	s.sinkName = "virt." + uuid.NewString()
	s.moduleID, err = s.pulse.LoadModule(ctx, "module-pipe-sink",
		"sink_name="+s.sinkName,
		"file="+fifoPath,
		fmt.Sprintf("rate=%d", s.format.SampleRate),
		"format=float32le",
		"channels=1",
		"use_system_clock_for_timing=yes",
	)
	if err != nil {
		os.RemoveAll(dir)
		return err
	}

	// O_RDWR keeps the FIFO open even when the sink briefly reconnects.
	s.fifo, err = os.OpenFile(fifoPath, os.O_RDWR, 0)
	if err != nil {
		_ = s.pulse.UnloadModule(ctx, s.moduleID)
		os.RemoveAll(dir)
		return fmt.Errorf("open speaker fifo: %w", err)
	}

	s.env.Set("PULSE_SINK", s.sinkName)
	slog.Debug("virtual speaker ready", "sink", s.sinkName)
	return nil
}

// Stop unloads the sink and removes the FIFO.
func (s *VirtualSpeaker) Stop(ctx context.Context) error {
	if s.fifo == nil {
		return nil
	}
	s.fifo.Close()
	s.fifo = nil

	if err := s.pulse.UnloadModule(ctx, s.moduleID); err != nil {
		slog.Warn("unload virtual speaker", "error", err)
	}
	if s.env.Get("PULSE_SINK") == s.sinkName {
		s.env.Unset("PULSE_SINK")
	}
	os.RemoveAll(s.dir)
	s.readNS = 0
	return nil
}

// Format returns the capture format.
func (s *VirtualSpeaker) Format() audio.Format {
	return s.format
}

// Read blocks for the next capture chunk.
func (s *VirtualSpeaker) Read(ctx context.Context) (audio.Chunk, error) {
	if s.fifo == nil {
		return audio.Chunk{}, fmt.Errorf("virtual speaker not started")
	}

	chunkSize := speakerFramesPerChunk * s.format.ByteDepth
	data := make([]byte, chunkSize)
	if _, err := readFullContext(ctx, s.fifo, data); err != nil {
		return audio.Chunk{}, err
	}

	chunk := audio.Chunk{Data: data, TimeNS: s.readNS}
	s.readNS += int64(s.format.Seconds(chunkSize) * 1e9)
	return chunk, nil
}

// readFullContext fills buf from the reader, aborting when the context
// is canceled between partial reads.
func readFullContext(ctx context.Context, r io.Reader, buf []byte) (int, error) {
	var n int
	for n < len(buf) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if err == io.EOF && n == len(buf) {
				return n, nil
			}
			return n, err
		}
	}
	return n, nil
}
