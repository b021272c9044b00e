package platform

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/joinly-ai/joinly/internal/provider"
)

var zoomJoinPath = regexp.MustCompile(`/j/(\d+)`)

// Zoom controls a Zoom meeting through the web client.
type Zoom struct{}

// Name returns the platform name.
func (z *Zoom) Name() string { return "Zoom" }

// Join rewrites the invite URL to the web client, fills name and
// passcode and joins.
func (z *Zoom) Join(ctx context.Context, meetingURL, name, passcode string) error {
	// Standard invite links open the desktop client prompt; the web
	// client path joins directly.
	meetingURL = zoomJoinPath.ReplaceAllString(meetingURL, "/wc/join/$1")

	if err := chromedp.Run(ctx, chromedp.Navigate(meetingURL)); err != nil {
		return fmt.Errorf("open meeting page: %w", err)
	}

	var invalid bool
	_ = evaluateJSON(ctx, `/invalid/i.test(document.body.innerText)`, &invalid)
	if invalid {
		return fmt.Errorf("meeting link is invalid")
	}

	_ = clickButton(ctx, `accept cookies|i agree`, ``)

	if err := waitFor(ctx,
		`!!document.querySelector('#input-for-name, #inputname')`,
		20*time.Second); err != nil {
		return fmt.Errorf("name field not found: %w", err)
	}
	if err := fillInput(ctx, `#input-for-name, #inputname`, name); err != nil {
		return fmt.Errorf("fill name: %w", err)
	}

	var needsPasscode bool
	_ = evaluateJSON(ctx, `!!document.querySelector("input[type='password']")`, &needsPasscode)
	if needsPasscode {
		if passcode == "" {
			passcode = passcodeFromURL(meetingURL)
		}
		if passcode == "" {
			return fmt.Errorf("passcode is required but not provided")
		}
		if err := fillInput(ctx, `input[type='password']`, passcode); err != nil {
			return fmt.Errorf("fill passcode: %w", err)
		}
	}

	if err := clickButton(ctx, `join`, ``); err != nil {
		return fmt.Errorf("click join: %w", err)
	}

	if err := z.waitJoined(ctx); err != nil {
		return err
	}
	return z.installActiveSpeakerObserver(ctx, name)
}

// passcodeFromURL extracts the embedded passcode of invite links.
func passcodeFromURL(meetingURL string) string {
	u, err := url.Parse(meetingURL)
	if err != nil {
		return ""
	}
	pwd := u.Query().Get("pwd")
	if pwd == "" {
		return ""
	}
	if i := strings.LastIndex(pwd, ".1"); i >= 0 {
		return pwd[i+2:]
	}
	return pwd
}

func (z *Zoom) waitJoined(ctx context.Context) error {
	err := waitFor(ctx, `(() => {
		if (/joining|we've let them know you're here/i.test(document.body.innerText)) return true;
		for (const b of document.querySelectorAll('button, [role="button"]')) {
			const text = (b.innerText || b.getAttribute("aria-label") || "");
			if (/leave/i.test(text)) return true;
		}
		return false;
	})()`, 30*time.Second)
	if err != nil {
		return fmt.Errorf("join check failed: %w", err)
	}
	return nil
}

// Leave clicks leave and confirms.
func (z *Zoom) Leave(ctx context.Context) error {
	z.activateControls(ctx)
	if err := clickButton(ctx, `leave`, ``); err != nil {
		return fmt.Errorf("leave meeting: %w", err)
	}
	// Confirmation popover.
	_ = clickButton(ctx, `leave meeting`, ``)
	return nil
}

// SendChatMessage opens the chat panel and sends the message.
func (z *Zoom) SendChatMessage(ctx context.Context, message string) error {
	if err := checkMessageLength(message); err != nil {
		return err
	}
	if err := z.openChat(ctx); err != nil {
		return err
	}

	var filled bool
	err := evaluateJSON(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector("div[contenteditable='true']");
		if (!el) return false;
		el.focus();
		el.innerText = %q;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		return true;
	})()`, message), &filled)
	if err != nil || !filled {
		return fmt.Errorf("fill chat input: %w", err)
	}
	return chromedp.Run(ctx, chromedp.KeyEvent(kb.Enter))
}

// ChatHistory scrapes the chat message list.
func (z *Zoom) ChatHistory(ctx context.Context) (provider.ChatHistory, error) {
	var history provider.ChatHistory
	if err := z.openChat(ctx); err != nil {
		return history, err
	}

	err := evaluateJSON(ctx, `(() => {
		const timeRx = /^\d{1,2}:\d{2}(?:\s*[AP]M)?$/i;
		const out = [];
		const panel = document.querySelector('div[role="application"][aria-label="Chat Message List"]');
		if (!panel) return out;
		for (const row of panel.querySelectorAll('[role="row"][aria-label]')) {
			const parts = row.getAttribute("aria-label").split(",").map(p => p.trim());
			if (parts.length < 3) continue;
			const first = parts[0];
			const sender = first.includes(" to ") ? first.split(" to ")[0].trim() : first;
			const rawTime = parts[1].replace(/[  ]/g, "").trim();
			const ts = timeRx.test(rawTime) ? rawTime : null;
			const text = parts.slice(2).join(",").trim();
			if (text) out.push({text: text, timestamp: ts, sender: sender || null});
		}
		return out;
	})()`, &history.Messages)
	if err != nil {
		return history, fmt.Errorf("scrape chat history: %w", err)
	}
	return history, nil
}

// Participants opens the participants panel and scrapes it.
func (z *Zoom) Participants(ctx context.Context) ([]provider.Participant, error) {
	var visible bool
	_ = evaluateJSON(ctx, `!!document.querySelector('div[role="list"][aria-label^="participants" i]')`, &visible)
	if !visible {
		z.activateControls(ctx)
		if err := clickButton(ctx, `participants`, ``); err != nil {
			return nil, fmt.Errorf("open participants: %w", err)
		}
		if err := waitFor(ctx,
			`!!document.querySelector('div[role="list"][aria-label^="participants" i]')`,
			5*time.Second); err != nil {
			return nil, fmt.Errorf("participants list not visible: %w", err)
		}
	}

	var participants []provider.Participant
	err := evaluateJSON(ctx, `(() => {
		const out = [];
		const list = document.querySelector('div[role="list"][aria-label^="participants" i]');
		if (!list) return out;
		for (const item of list.querySelectorAll("div.participants-li")) {
			const label = item.getAttribute("aria-label");
			if (!label) continue;
			const parts = label.split(",");
			out.push({name: parts[0].trim(), infos: parts.slice(1).map(p => p.trim())});
		}
		return out;
	})()`, &participants)
	if err != nil {
		return nil, fmt.Errorf("scrape participants: %w", err)
	}
	return participants, nil
}

// Mute mutes the microphone.
func (z *Zoom) Mute(ctx context.Context) error {
	z.activateControls(ctx)
	if err := clickButton(ctx, `mute my microphone`, ``); err != nil {
		var muted bool
		_ = evaluateJSON(ctx, `[...document.querySelectorAll('button, [role="button"]')]
			.some(b => /unmute my microphone/i.test(b.getAttribute("aria-label") || b.innerText || ""))`, &muted)
		if !muted {
			return fmt.Errorf("mute control not found")
		}
	}
	return nil
}

// Unmute unmutes the microphone.
func (z *Zoom) Unmute(ctx context.Context) error {
	z.activateControls(ctx)
	if err := clickButton(ctx, `unmute my microphone`, ``); err != nil {
		var unmuted bool
		_ = evaluateJSON(ctx, `[...document.querySelectorAll('button, [role="button"]')]
			.some(b => /mute my microphone/i.test(b.getAttribute("aria-label") || b.innerText || ""))`, &unmuted)
		if !unmuted {
			return fmt.Errorf("unmute control not found")
		}
	}
	return nil
}

// ActiveSpeaker reads the observer installed at join time.
func (z *Zoom) ActiveSpeaker(ctx context.Context) (string, error) {
	return readActiveSpeaker(ctx)
}

// installActiveSpeakerObserver watches video tiles with the speaking
// ring.
func (z *Zoom) installActiveSpeakerObserver(ctx context.Context, ownName string) error {
	script := fmt.Sprintf(`(() => {
		const ownName = %q;
		const find = () => {
			for (const tile of document.querySelectorAll('[class*="speaker-active"], [class*="video-avatar__avatar"][class*="active"]')) {
				const label = tile.getAttribute("aria-label") || tile.innerText || "";
				const name = label.split(",")[0].trim();
				if (name && name !== ownName) return name;
			}
			return null;
		};
		let last = null;
		new MutationObserver(() => {
			const cur = find();
			if (cur !== last) { last = cur; %s = cur; }
		}).observe(document, {
			subtree: true, childList: true,
			attributes: true, attributeFilter: ['style', 'class'],
		});
		%s = find();
		return true;
	})()`, ownName, activeSpeakerVar, activeSpeakerVar)

	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("install active speaker observer: %w", err)
	}
	return nil
}

// activateControls reveals the auto-hidden control bar.
func (z *Zoom) activateControls(ctx context.Context) {
	_ = chromedp.Run(ctx, chromedp.MouseClickXY(640, 360))
}

// openChat makes the chat input visible.
func (z *Zoom) openChat(ctx context.Context) error {
	var visible bool
	_ = evaluateJSON(ctx, `!!document.querySelector("div[contenteditable='true']")`, &visible)
	if visible {
		return nil
	}
	z.activateControls(ctx)
	if err := clickButton(ctx, `chat panel`, ``); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	if err := waitFor(ctx,
		`!!document.querySelector("div[contenteditable='true']")`,
		5*time.Second); err != nil {
		return fmt.Errorf("chat input not visible: %w", err)
	}
	return nil
}
