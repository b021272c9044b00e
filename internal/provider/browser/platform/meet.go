package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/joinly-ai/joinly/internal/provider"
)

// GoogleMeet controls a Google Meet meeting.
type GoogleMeet struct{}

// Name returns the platform name.
func (g *GoogleMeet) Name() string { return "GoogleMeet" }

// Join opens the meeting URL, fills the participant name, clicks join
// and waits to be let in.
func (g *GoogleMeet) Join(ctx context.Context, url, name, _ string) error {
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("open meeting page: %w", err)
	}
	if err := waitFor(ctx,
		`!!document.querySelector('input[placeholder*="name" i], input[aria-label*="name" i]')`,
		20*time.Second); err != nil {
		return fmt.Errorf("name field not found: %w", err)
	}
	if err := fillInput(ctx, `input[placeholder*="name" i], input[aria-label*="name" i]`, name); err != nil {
		return fmt.Errorf("fill name: %w", err)
	}
	if err := clickButton(ctx, `join`, `other ways`); err != nil {
		return fmt.Errorf("click join: %w", err)
	}
	if err := g.waitJoined(ctx); err != nil {
		return err
	}
	return g.installActiveSpeakerObserver(ctx, name)
}

// waitJoined waits until the meeting UI shows the bot inside the call or
// in the waiting room.
func (g *GoogleMeet) waitJoined(ctx context.Context) error {
	err := waitFor(ctx, `(() => {
		if (/asking to be let in|someone lets you in/i.test(document.body.innerText)) return true;
		for (const b of document.querySelectorAll('button, [role="button"]')) {
			const text = (b.innerText || b.getAttribute("aria-label") || "");
			if (/leave call|leave meeting/i.test(text)) return true;
		}
		return false;
	})()`, 30*time.Second)
	if err != nil {
		return fmt.Errorf("join check failed: %w", err)
	}
	return nil
}

// Leave clicks the leave button.
func (g *GoogleMeet) Leave(ctx context.Context) error {
	g.dismissDialog(ctx)
	if err := clickButton(ctx, `leave`, ``); err != nil {
		return fmt.Errorf("leave meeting: %w", err)
	}
	return nil
}

// SendChatMessage opens the chat panel and sends the message.
func (g *GoogleMeet) SendChatMessage(ctx context.Context, message string) error {
	if err := checkMessageLength(message); err != nil {
		return err
	}
	if err := g.openChat(ctx); err != nil {
		return err
	}
	if err := fillInput(ctx, `textarea[placeholder*="Send a message"]`, message); err != nil {
		return fmt.Errorf("fill chat input: %w", err)
	}
	return chromedp.Run(ctx, chromedp.KeyEvent(kb.Enter))
}

// ChatHistory scrapes the chat side panel.
func (g *GoogleMeet) ChatHistory(ctx context.Context) (provider.ChatHistory, error) {
	var history provider.ChatHistory
	if err := g.openChat(ctx); err != nil {
		return history, err
	}

	err := evaluateJSON(ctx, `(() => {
		const timeRx = /^\d{1,2}:\d{2}(?:[AP]M)?$/i;
		const out = [];
		const panel = document.querySelector('aside[aria-label="Side panel"]');
		if (!panel) return out;
		for (const bubble of panel.querySelectorAll('div[data-message-id]')) {
			const blob = bubble.closest('div:has(> div > div[data-message-id])') || bubble.parentElement;
			let sender = null, ts = null;
			const header = blob && blob.firstElementChild;
			if (header) {
				for (let part of header.innerText.split("\n")) {
					part = part.replace(/[  ]/g, "").trim();
					if (!part) continue;
					if (timeRx.test(part)) ts = part;
					else if (sender === null) sender = part;
				}
			}
			const text = bubble.innerText.trim();
			if (text) out.push({text: text, timestamp: ts, sender: sender});
		}
		return out;
	})()`, &history.Messages)
	if err != nil {
		return history, fmt.Errorf("scrape chat history: %w", err)
	}
	return history, nil
}

// Participants opens the people panel and scrapes the list.
func (g *GoogleMeet) Participants(ctx context.Context) ([]provider.Participant, error) {
	g.dismissDialog(ctx)

	var visible bool
	_ = evaluateJSON(ctx, `!!document.querySelector('div[aria-label="Participants"][role="list"]')`, &visible)
	if !visible {
		if err := clickButton(ctx, `^people`, ``); err != nil {
			return nil, fmt.Errorf("open participants: %w", err)
		}
		if err := waitFor(ctx,
			`!!document.querySelector('div[aria-label="Participants"][role="list"]')`,
			5*time.Second); err != nil {
			return nil, fmt.Errorf("participants list not visible: %w", err)
		}
	}

	var participants []provider.Participant
	err := evaluateJSON(ctx, `(() => {
		const out = [];
		const list = document.querySelector('div[aria-label="Participants"][role="list"]');
		if (!list) return out;
		for (const item of list.querySelectorAll('div[role="listitem"]')) {
			const name = item.getAttribute("aria-label");
			if (!name) continue;
			const infos = [];
			if (item.innerText.includes("(You)")) infos.push("You");
			if (item.innerText.includes("Meeting host")) infos.push("Meeting host");
			const labels = [...item.querySelectorAll('button, [role="button"]')]
				.map(b => b.getAttribute("aria-label") || "");
			if (labels.some(l => /unmute/i.test(l))) infos.push("Muted");
			else if (labels.some(l => /mute/i.test(l))) infos.push("Unmuted");
			out.push({name: name, infos: infos});
		}
		return out;
	})()`, &participants)
	if err != nil {
		return nil, fmt.Errorf("scrape participants: %w", err)
	}
	return participants, nil
}

// Mute turns the microphone off.
func (g *GoogleMeet) Mute(ctx context.Context) error {
	g.dismissDialog(ctx)
	if err := clickButton(ctx, `^turn off mic`, ``); err != nil {
		// Already muted when only the turn-on control exists.
		var off bool
		_ = evaluateJSON(ctx, `[...document.querySelectorAll('button, [role="button"]')]
			.some(b => /^turn on mic/i.test(b.getAttribute("aria-label") || b.innerText || ""))`, &off)
		if !off {
			return fmt.Errorf("mute control not found")
		}
	}
	return nil
}

// Unmute turns the microphone on.
func (g *GoogleMeet) Unmute(ctx context.Context) error {
	g.dismissDialog(ctx)
	if err := clickButton(ctx, `^turn on mic`, ``); err != nil {
		var on bool
		_ = evaluateJSON(ctx, `[...document.querySelectorAll('button, [role="button"]')]
			.some(b => /^turn off mic/i.test(b.getAttribute("aria-label") || b.innerText || ""))`, &on)
		if !on {
			return fmt.Errorf("unmute control not found")
		}
	}
	return nil
}

// ActiveSpeaker reads the observer installed at join time.
func (g *GoogleMeet) ActiveSpeaker(ctx context.Context) (string, error) {
	return readActiveSpeaker(ctx)
}

// installActiveSpeakerObserver watches participant tiles for the
// speaking indicator and records the speaking participant's name.
func (g *GoogleMeet) installActiveSpeakerObserver(ctx context.Context, ownName string) error {
	script := fmt.Sprintf(`(() => {
		const ownName = %q;
		const find = () => {
			for (const t of document.querySelectorAll('div[data-participant-id]')) {
				if (![...t.querySelectorAll('div')].some(d =>
						!d.children.length &&
						getComputedStyle(d).display === 'none' &&
						parseFloat(getComputedStyle(d).borderTopWidth) > 3
					))
				{
					const el = t.querySelector('span.notranslate');
					const name = el?.textContent.trim();
					if (name && name.length > 0 && name !== ownName) return name;
				}
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

// dismissDialog closes any modal blocking the controls.
func (g *GoogleMeet) dismissDialog(ctx context.Context) {
	var clicked bool
	_ = evaluateJSON(ctx, `(() => {
		const btn = document.querySelector("div[role='dialog'] [data-mdc-dialog-action]");
		if (btn) { btn.click(); return true; }
		return false;
	})()`, &clicked)
}

// openChat makes the chat input visible.
func (g *GoogleMeet) openChat(ctx context.Context) error {
	g.dismissDialog(ctx)

	var visible bool
	_ = evaluateJSON(ctx, `!!document.querySelector('textarea[placeholder*="Send a message"]')`, &visible)
	if visible {
		return nil
	}
	if err := clickButton(ctx, `^chat`, ``); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	if err := waitFor(ctx,
		`!!document.querySelector('textarea[placeholder*="Send a message"]')`,
		5*time.Second); err != nil {
		return fmt.Errorf("chat input not visible: %w", err)
	}
	return nil
}
