package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/joinly-ai/joinly/internal/audio"
	"github.com/joinly-ai/joinly/internal/events"
	"github.com/joinly-ai/joinly/internal/instrumentation"
	"github.com/joinly-ai/joinly/internal/logging"
	"github.com/joinly-ai/joinly/internal/provider"
	"github.com/joinly-ai/joinly/internal/stt"
	"github.com/joinly-ai/joinly/internal/transcript"
	"github.com/joinly-ai/joinly/internal/vad"
)

// sttLatencyWarn is the utterance-end to last-segment latency above
// which the pipeline is falling behind live speech.
const sttLatencyWarn = 300 * time.Millisecond

// TranscriptionConfig tunes the transcription flow.
type TranscriptionConfig struct {
	// UtteranceTail is the silence after the last voiced window that
	// ends an utterance.
	UtteranceTail time.Duration
	// NoSpeechDelay is how far into an utterance speech must persist
	// before the no-speech signal is lowered.
	NoSpeechDelay time.Duration
	// MaxStreams bounds concurrent per-utterance transcriptions.
	MaxStreams int
	// WindowQueueSize bounds buffered windows per utterance.
	WindowQueueSize int
}

func (c *TranscriptionConfig) applyDefaults() {
	if c.UtteranceTail <= 0 {
		c.UtteranceTail = 600 * time.Millisecond
	}
	if c.NoSpeechDelay <= 0 {
		c.NoSpeechDelay = 400 * time.Millisecond
	}
	if c.MaxStreams <= 0 {
		c.MaxStreams = 5
	}
	if c.WindowQueueSize <= 0 {
		c.WindowQueueSize = 100
	}
}

// TranscriptionController reads provider audio, segments it into
// utterances with the detector and transcribes each utterance on its
// own stream.
type TranscriptionController struct {
	reader      provider.AudioReader
	detector    vad.Detector
	transcriber stt.Transcriber
	cfg         TranscriptionConfig
	log         *slog.Logger
	metrics     *instrumentation.Metrics

	noSpeech *Signal
	streams  atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTranscriptionController creates a transcription controller over the
// given audio source, detector and transcriber.
func NewTranscriptionController(reader provider.AudioReader, detector vad.Detector, transcriber stt.Transcriber, cfg TranscriptionConfig) *TranscriptionController {
	cfg.applyDefaults()
	return &TranscriptionController{
		reader:      reader,
		detector:    detector,
		transcriber: transcriber,
		cfg:         cfg,
		log:         logging.WithService(slog.Default(), "transcription"),
		noSpeech:    NewSignal(),
	}
}

// SetMetrics attaches a metrics recorder for pipeline telemetry.
func (c *TranscriptionController) SetMetrics(m *instrumentation.Metrics) {
	c.metrics = m
}

// NoSpeech returns the signal that is raised while nobody is speaking.
func (c *TranscriptionController) NoSpeech() *Signal {
	return c.noSpeech
}

// Start begins the VAD worker. Segments land in the transcript and are
// announced on the bus.
func (c *TranscriptionController) Start(ctx context.Context, clock *Clock, tr *transcript.Transcript, bus *events.Bus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return errors.New("transcription controller already started")
	}

	c.detector.Reset()
	c.noSpeech.Set()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.vadWorker(runCtx, clock, tr, bus)
	return nil
}

// Stop cancels the workers and waits for them to drain.
func (c *TranscriptionController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	c.noSpeech.Clear()
}

func (c *TranscriptionController) vadWorker(ctx context.Context, clock *Clock, tr *transcript.Transcript, bus *events.Bus) {
	defer c.wg.Done()

	stream := vad.NewStream(c.detector)

	var (
		offset      int64
		haveOffset  bool
		lastSpeech  int64
		haveSpeech  bool
		uttStart    int64
		queue       chan vad.Window
		dropped     int
		utteranceNS = c.cfg.UtteranceTail.Nanoseconds()
		delayNS     = c.cfg.NoSpeechDelay.Nanoseconds()
	)
	defer func() {
		if queue != nil {
			close(queue)
		}
	}()

	for {
		chunk, err := c.reader.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.log.Error("audio capture failed", logging.Err(err))
			}
			return
		}
		if !haveOffset {
			offset = chunk.TimeNS
			haveOffset = true
		}
		chunk.TimeNS -= offset
		clock.Update(chunk.TimeNS)

		data, err := audio.Convert(chunk.Data, c.reader.Format(), vad.Format)
		if err != nil {
			c.log.Error("audio conversion failed", logging.Err(err))
			return
		}

		windows, err := stream.Push(audio.Chunk{Data: data, TimeNS: chunk.TimeNS, Speaker: chunk.Speaker})
		if err != nil {
			c.log.Error("voice activity detection failed", logging.Err(err))
			return
		}

		for _, w := range windows {
			if w.IsSpeech {
				lastSpeech = w.TimeNS
				haveSpeech = true
			}

			if w.IsSpeech && queue == nil {
				c.log.Debug("utterance start", "time", fmt.Sprintf("%.2fs", float64(w.TimeNS)/1e9))
				uttStart = w.TimeNS
				if int(c.streams.Load()) >= c.cfg.MaxStreams {
					c.log.Warn("transcription stream limit reached, dropping window", "limit", c.cfg.MaxStreams)
					continue
				}
				queue = make(chan vad.Window, c.cfg.WindowQueueSize)
				c.streams.Add(1)
				c.wg.Add(1)
				go c.transcribeUtterance(ctx, queue, tr, bus)
			}

			if !w.IsSpeech && haveSpeech && w.TimeNS-lastSpeech >= utteranceNS {
				c.log.Debug("utterance end", "time", fmt.Sprintf("%.2fs", float64(w.TimeNS)/1e9))
				c.noSpeech.Set()
				haveSpeech = false
				if queue != nil {
					close(queue)
					queue = nil
				}
			}

			if queue != nil {
				if w.IsSpeech && w.TimeNS-uttStart >= delayNS {
					c.noSpeech.Clear()
				}
				select {
				case queue <- w:
					if dropped > 0 {
						c.log.Warn("dropped audio windows on full queue", "count", dropped)
						if c.metrics != nil {
							c.metrics.AddDroppedWindows(ctx, int64(dropped))
						}
						dropped = 0
					}
				default:
					dropped++
				}
			}
		}
	}
}

// transcribeUtterance feeds one utterance's windows to the transcriber
// and lands the resulting segments, clamped to the utterance bounds, in
// the transcript.
func (c *TranscriptionController) transcribeUtterance(ctx context.Context, queue <-chan vad.Window, tr *transcript.Transcript, bus *events.Bus) {
	defer c.wg.Done()
	defer c.streams.Add(-1)

	var (
		boundsMu sync.Mutex
		start    = math.Inf(-1)
		end      = math.Inf(1)
		started  bool
		endedAt  time.Time
	)

	forward := make(chan vad.Window)
	go func() {
		defer close(forward)
		for w := range queue {
			boundsMu.Lock()
			if !started {
				start = float64(w.TimeNS) / 1e9
				started = true
			}
			end = float64(w.TimeNS)/1e9 + w.Duration()
			boundsMu.Unlock()

			select {
			case forward <- w:
			case <-ctx.Done():
				for range queue { // unblock the producer
				}
				return
			}
		}
		boundsMu.Lock()
		endedAt = time.Now()
		boundsMu.Unlock()
	}()

	segments, errc := c.transcriber.Stream(ctx, forward)

	count := 0
	for s := range segments {
		boundsMu.Lock()
		lo, hi := start, end
		boundsMu.Unlock()

		s.Start = math.Min(math.Max(s.Start, lo), hi)
		s.End = math.Max(math.Min(s.End, hi), s.Start)
		s.Role = transcript.RoleParticipant
		tr.Add(s)
		bus.Publish(events.TypeSegment)
		count++

		speaker := s.Speaker
		if speaker == "" {
			speaker = "participant"
		}
		c.log.Debug("transcribed segment", "speaker", speaker,
			"span", fmt.Sprintf("%.2fs-%.2fs", s.Start, s.End))
	}
	if err := <-errc; err != nil && ctx.Err() == nil {
		c.log.Error("utterance transcription failed", logging.Err(err))
	}

	if count > 0 {
		boundsMu.Lock()
		ended := endedAt
		boundsMu.Unlock()
		if !ended.IsZero() {
			latency := time.Since(ended)
			if c.metrics != nil {
				c.metrics.RecordUtteranceLatency(ctx, latency)
			}
			if latency > sttLatencyWarn {
				c.log.Warn("transcription lagging utterance end", "latency", latency)
			} else {
				c.log.Debug("utterance transcribed", "latency", latency)
			}
		}
		bus.Publish(events.TypeUtterance)
	}
}
