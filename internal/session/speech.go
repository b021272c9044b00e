package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"log/slog"

	"github.com/joinly-ai/joinly/internal/events"
	"github.com/joinly-ai/joinly/internal/logging"
	"github.com/joinly-ai/joinly/internal/provider"
	"github.com/joinly-ai/joinly/internal/transcript"
	"github.com/joinly-ai/joinly/internal/tts"
)

// ErrSpeechInterrupted reports that playback was cut off by detected
// speech in the meeting.
var ErrSpeechInterrupted = errors.New("speech interrupted")

// ErrSpeechQueueFull reports that the speak queue cannot take more jobs.
var ErrSpeechQueueFull = errors.New("speech queue full")

// InterruptedError carries the estimated text spoken before the cutoff.
type InterruptedError struct {
	Spoken string
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted by detected speech, spoken so far: %q", e.Spoken)
}

func (e *InterruptedError) Unwrap() error {
	return ErrSpeechInterrupted
}

// SpeechConfig tunes the speech flow.
type SpeechConfig struct {
	// QueueSize bounds pending speak jobs.
	QueueSize int
	// NonInterruptable is the lead time during which playback ignores
	// detected speech.
	NonInterruptable float64
}

func (c *SpeechConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 10
	}
	if c.NonInterruptable <= 0 {
		c.NonInterruptable = 0.5
	}
}

type speakJob struct {
	ctx       context.Context
	text      string
	interrupt bool
	done      chan struct{}
	err       error
}

// SpeechController serializes synthesized speech into the meeting
// microphone. Jobs run one at a time in enqueue order.
type SpeechController struct {
	writer provider.AudioWriter
	synth  tts.Synthesizer
	// noSpeech is raised by the transcription controller while nobody
	// in the meeting is speaking.
	noSpeech *Signal
	cfg      SpeechConfig
	log      *slog.Logger

	chunkDur float64

	mu         sync.Mutex
	queue      chan *speakJob
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	clock      *Clock
	transcript *transcript.Transcript
}

// NewSpeechController creates a speech controller writing through the
// given audio writer.
func NewSpeechController(writer provider.AudioWriter, synth tts.Synthesizer, noSpeech *Signal, cfg SpeechConfig) *SpeechController {
	cfg.applyDefaults()
	format := writer.Format()
	return &SpeechController{
		writer:   writer,
		synth:    synth,
		noSpeech: noSpeech,
		cfg:      cfg,
		log:      logging.WithService(slog.Default(), "speech"),
		chunkDur: format.Seconds(writer.ChunkSize()),
	}
}

// Start begins the speech worker. Spoken text is appended to the
// transcript with the assistant role.
func (c *SpeechController) Start(ctx context.Context, clock *Clock, tr *transcript.Transcript, _ *events.Bus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue != nil {
		return errors.New("speech controller already started")
	}

	c.clock = clock
	c.transcript = tr
	c.queue = make(chan *speakJob, c.cfg.QueueSize)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.worker(runCtx, c.queue)
	return nil
}

// Stop cancels the worker and fails all pending jobs.
func (c *SpeechController) Stop() {
	c.mu.Lock()
	queue := c.queue
	cancel := c.cancel
	c.queue = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()

	for {
		select {
		case job := <-queue:
			c.log.Warn("canceled queued speech", "text", job.text)
			job.err = context.Canceled
			close(job.done)
		default:
			return
		}
	}
}

// SpeakText synthesizes and plays text into the meeting, blocking until
// playback finishes. With interrupt, playback starts immediately instead
// of waiting for silence.
func (c *SpeechController) SpeakText(ctx context.Context, text string, interrupt bool) error {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	if queue == nil {
		return errors.New("speech controller not started")
	}

	job := &speakJob{ctx: ctx, text: text, interrupt: interrupt, done: make(chan struct{})}
	select {
	case queue <- job:
	default:
		return ErrSpeechQueueFull
	}

	select {
	case <-job.done:
		return job.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SpeechController) worker(ctx context.Context, queue chan *speakJob) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-queue:
			job.err = c.speak(ctx, job.text, job.interrupt)
			close(job.done)
		}
	}
}

// speak streams TTS segments into the writer. Playback pre-chunks each
// segment to the writer chunk size so an interruption takes effect
// between chunks, not between sentences.
func (c *SpeechController) speak(ctx context.Context, text string, interrupt bool) error {
	c.log.Info("speaking text", "text", text)

	startSeconds := c.clock.Seconds()
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	segments, errc := c.synth.Stream(streamCtx, text)

	// abandon cancels synthesis and unblocks the producer when playback
	// stops before the stream is drained.
	abandon := func() {
		cancelStream()
		go func() {
			for range segments {
			}
		}()
	}

	chunkSize := c.writer.ChunkSize()
	chunkNum := 0
	var spoken []string
	interrupted := false

	for segment := range segments {
		if !interrupt && chunkNum == 0 {
			if err := c.noSpeech.Wait(ctx); err != nil {
				abandon()
				return err
			}
		}

		for i := 0; i < len(segment.PCM); i += chunkSize {
			playback := float64(chunkNum) * c.chunkDur
			if playback >= c.cfg.NonInterruptable && !c.noSpeech.IsSet() {
				words := strings.Split(segment.Text, " ")
				cut := i * len(words) / max(len(segment.PCM), 1)
				spoken = append(spoken, words[:cut]...)
				interrupted = true
				break
			}

			endIdx := min(i+chunkSize, len(segment.PCM))
			if err := c.writer.Write(ctx, segment.PCM[i:endIdx]); err != nil {
				abandon()
				c.appendSpoken(startSeconds, spoken)
				return fmt.Errorf("write speech audio: %w", err)
			}
			chunkNum++
		}

		if interrupted {
			break
		}
		spoken = append(spoken, segment.Text)
	}

	if interrupted {
		abandon()
		c.appendSpoken(startSeconds, spoken)
		text := strings.Join(spoken, " ")
		c.log.Warn("speech interrupted", "spoken", text)
		return &InterruptedError{Spoken: text}
	}

	if err := <-errc; err != nil {
		c.appendSpoken(startSeconds, spoken)
		return fmt.Errorf("synthesize speech: %w", err)
	}

	c.appendSpoken(startSeconds, spoken)
	return nil
}

// appendSpoken records what was actually said in the transcript.
func (c *SpeechController) appendSpoken(startSeconds float64, spoken []string) {
	text := strings.TrimSpace(strings.Join(spoken, " "))
	if text == "" {
		return
	}
	c.transcript.Add(transcript.Segment{
		Text:  text,
		Start: startSeconds,
		End:   c.clock.Seconds(),
		Role:  transcript.RoleAssistant,
	})
}
