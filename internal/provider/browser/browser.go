// Package browser implements the meeting provider on a headless Chrome
// instance wired to virtual audio and display devices. Platform
// controllers drive the meeting UI; the pipe sink and pipe source carry
// meeting audio in and out.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/joinly-ai/joinly/internal/audio"
	"github.com/joinly-ai/joinly/internal/logging"
	"github.com/joinly-ai/joinly/internal/provider"
	"github.com/joinly-ai/joinly/internal/provider/browser/device"
	"github.com/joinly-ai/joinly/internal/provider/browser/platform"
)

const speakerPollInterval = 250 * time.Millisecond

// Config configures the browser provider.
type Config struct {
	// VNCServer mirrors the virtual display for debugging.
	VNCServer bool
	VNCPort   int

	SnapshotWidth  int
	SnapshotHeight int
}

// Provider joins meetings through a browser. Safe for concurrent use.
type Provider struct {
	cfg Config

	env     *device.Env
	pulse   *device.PulseServer
	display *device.VirtualDisplay
	speaker *device.VirtualSpeaker
	mic     *device.VirtualMicrophone

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	controller  platform.Controller

	activeSpeaker atomic.Value
	pollStop      chan struct{}
}

// New creates a browser provider.
func New(cfg Config) *Provider {
	if cfg.SnapshotWidth == 0 {
		cfg.SnapshotWidth = 512
	}
	if cfg.SnapshotHeight == 0 {
		cfg.SnapshotHeight = 288
	}

	env := device.NewEnv()
	pulse := device.NewPulseServer(env)
	display := device.NewVirtualDisplay(env)
	display.VNCServer = cfg.VNCServer
	display.VNCPort = cfg.VNCPort

	p := &Provider{
		cfg:     cfg,
		env:     env,
		pulse:   pulse,
		display: display,
		speaker: device.NewVirtualSpeaker(pulse, env),
		mic:     device.NewVirtualMicrophone(pulse, env),
	}
	p.activeSpeaker.Store("")
	return p
}

// Start brings up the devices and launches the browser.
func (p *Provider) Start(ctx context.Context) error {
	log := logging.WithService(slog.Default(), "browser-provider")

	type step struct {
		name  string
		start func(context.Context) error
	}
	steps := []step{
		{"pulse", p.pulse.Start},
		{"display", p.display.Start},
		{"speaker", p.speaker.Start},
		{"microphone", p.mic.Start},
	}
	for _, s := range steps {
		if err := s.start(ctx); err != nil {
			_ = p.Stop(ctx)
			return fmt.Errorf("start %s: %w", s.name, err)
		}
		log.Debug("device started", logging.Operation(s.name))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("alsa-output-device", "pulse"),
		chromedp.Flag("alsa-input-device", p.env.Get("PULSE_SOURCE")),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("ozone-platform", "x11"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("window-size", "1280,720"),
		chromedp.Flag("lang", "en-US"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.Flag("disable-features", "TranslateUI,MediaRouter,WebRtcAutomaticGainControl"),
		chromedp.Flag("headless", false),
		chromedp.Env(p.env.List()...),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, _ := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocCancel()
		_ = p.Stop(ctx)
		return fmt.Errorf("launch browser: %w", err)
	}
	p.allocCancel = allocCancel
	p.browserCtx = browserCtx

	log.Info("browser provider started")
	return nil
}

// Stop leaves any meeting, closes the browser and tears down devices.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.tabCtx != nil {
		_ = p.controller.Leave(p.tabCtx)
		p.closeTabLocked()
	}
	p.mu.Unlock()

	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
		p.browserCtx = nil
	}

	_ = p.mic.Stop(ctx)
	_ = p.speaker.Stop(ctx)
	_ = p.display.Stop(ctx)
	_ = p.pulse.Stop(ctx)
	return nil
}

// Join opens a new tab and joins the meeting at the URL.
func (p *Provider) Join(ctx context.Context, url, name, passcode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browserCtx == nil {
		return fmt.Errorf("provider not started")
	}
	if p.tabCtx != nil {
		return fmt.Errorf("meeting already joined, leave before joining a new one")
	}

	controller, err := platform.Select(url)
	if err != nil {
		return err
	}

	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx)
	if err := controller.Join(tabCtx, url, name, passcode); err != nil {
		tabCancel()
		return fmt.Errorf("join %s meeting: %w", controller.Name(), err)
	}

	p.tabCtx = tabCtx
	p.tabCancel = tabCancel
	p.controller = controller
	p.startSpeakerPoll()
	slog.Info("joined meeting", logging.Platform(controller.Name()))
	return nil
}

// Leave leaves the current meeting and closes its tab.
func (p *Provider) Leave(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tabCtx == nil {
		return provider.ErrNotInMeeting
	}
	if err := p.controller.Leave(p.tabCtx); err != nil {
		slog.Warn("leave failed, closing tab anyway", logging.Err(err))
	}
	p.closeTabLocked()
	return nil
}

func (p *Provider) closeTabLocked() {
	if p.pollStop != nil {
		close(p.pollStop)
		p.pollStop = nil
	}
	p.tabCancel()
	p.tabCtx = nil
	p.tabCancel = nil
	p.controller = nil
	p.activeSpeaker.Store("")
}

// SendChatMessage sends a message into the meeting chat.
func (p *Provider) SendChatMessage(ctx context.Context, message string) error {
	return p.withMeeting("send_chat_message", func(tab context.Context, c platform.Controller) error {
		return c.SendChatMessage(tab, message)
	})
}

// GetChatHistory scrapes the meeting chat.
func (p *Provider) GetChatHistory(ctx context.Context) (provider.ChatHistory, error) {
	var history provider.ChatHistory
	err := p.withMeeting("get_chat_history", func(tab context.Context, c platform.Controller) error {
		var err error
		history, err = c.ChatHistory(tab)
		return err
	})
	return history, err
}

// GetParticipants scrapes the participant list.
func (p *Provider) GetParticipants(ctx context.Context) ([]provider.Participant, error) {
	var participants []provider.Participant
	err := p.withMeeting("get_participants", func(tab context.Context, c platform.Controller) error {
		var err error
		participants, err = c.Participants(tab)
		return err
	})
	return participants, err
}

// Mute mutes the bot in the meeting.
func (p *Provider) Mute(ctx context.Context) error {
	return p.withMeeting("mute", func(tab context.Context, c platform.Controller) error {
		return c.Mute(tab)
	})
}

// Unmute unmutes the bot in the meeting.
func (p *Provider) Unmute(ctx context.Context) error {
	return p.withMeeting("unmute", func(tab context.Context, c platform.Controller) error {
		return c.Unmute(tab)
	})
}

// AudioReader returns meeting audio with active speaker attribution.
func (p *Provider) AudioReader() provider.AudioReader {
	return &attributedReader{inner: p.speaker, name: &p.activeSpeaker}
}

// AudioWriter returns the virtual microphone.
func (p *Provider) AudioWriter() provider.AudioWriter {
	return p.mic
}

// VideoReader returns the snapshot capturer.
func (p *Provider) VideoReader() provider.VideoReader {
	return p
}

// Snapshot captures the meeting tab as a scaled JPEG frame.
func (p *Provider) Snapshot(ctx context.Context) (provider.Snapshot, error) {
	p.mu.Lock()
	tab := p.tabCtx
	p.mu.Unlock()
	if tab == nil {
		return provider.Snapshot{}, provider.ErrNotInMeeting
	}

	var png []byte
	if err := chromedp.Run(tab, chromedp.CaptureScreenshot(&png)); err != nil {
		return provider.Snapshot{}, fmt.Errorf("capture screenshot: %w", err)
	}
	jpeg, err := scaleToJPEG(png, p.cfg.SnapshotWidth, p.cfg.SnapshotHeight)
	if err != nil {
		return provider.Snapshot{}, err
	}
	return provider.Snapshot{Data: jpeg, MediaType: "image/jpeg"}, nil
}

// withMeeting serializes a meeting action against the current tab.
func (p *Provider) withMeeting(action string, fn func(context.Context, platform.Controller) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tabCtx == nil {
		return fmt.Errorf("failed to perform %q: %w", action, provider.ErrNotInMeeting)
	}
	if err := fn(p.tabCtx, p.controller); err != nil {
		return fmt.Errorf("failed to perform %q: %w", action, err)
	}
	slog.Debug("meeting action performed", logging.Operation(action))
	return nil
}

// startSpeakerPoll keeps the cached active speaker fresh without
// blocking the capture path on page evaluation.
func (p *Provider) startSpeakerPoll() {
	stop := make(chan struct{})
	p.pollStop = stop
	tab := p.tabCtx
	controller := p.controller

	go func() {
		ticker := time.NewTicker(speakerPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				name, err := controller.ActiveSpeaker(tab)
				if err != nil {
					continue
				}
				p.activeSpeaker.Store(name)
			}
		}
	}()
}

// attributedReader stamps capture chunks with the cached active speaker.
type attributedReader struct {
	inner provider.AudioReader
	name  *atomic.Value
}

func (r *attributedReader) Format() audio.Format {
	return r.inner.Format()
}

func (r *attributedReader) Read(ctx context.Context) (audio.Chunk, error) {
	chunk, err := r.inner.Read(ctx)
	if err != nil {
		return chunk, err
	}
	chunk.Speaker, _ = r.name.Load().(string)
	return chunk, nil
}
