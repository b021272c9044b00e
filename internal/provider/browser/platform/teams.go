package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/joinly-ai/joinly/internal/provider"
)

// Teams controls a Microsoft Teams meeting.
type Teams struct{}

// Name returns the platform name.
func (t *Teams) Name() string { return "Teams" }

// Join opens the meeting URL, fills the participant name and joins.
func (t *Teams) Join(ctx context.Context, url, name, _ string) error {
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("open meeting page: %w", err)
	}

	// The missing-audio prompt can cover the prejoin screen.
	_ = clickButton(ctx, `continue without audio`, ``)

	if err := waitFor(ctx,
		`!!document.querySelector('input[placeholder*="name" i]')`,
		20*time.Second); err != nil {
		return fmt.Errorf("name field not found: %w", err)
	}
	if err := fillInput(ctx, `input[placeholder*="name" i]`, name); err != nil {
		return fmt.Errorf("fill name: %w", err)
	}
	if err := clickButton(ctx, `^join`, ``); err != nil {
		return fmt.Errorf("click join: %w", err)
	}
	return t.installActiveSpeakerObserver(ctx, name)
}

// Leave clicks the leave button.
func (t *Teams) Leave(ctx context.Context) error {
	if err := clickButton(ctx, `^leave`, ``); err != nil {
		return fmt.Errorf("leave meeting: %w", err)
	}
	return nil
}

// SendChatMessage opens the chat pane and sends the message.
func (t *Teams) SendChatMessage(ctx context.Context, message string) error {
	if err := checkMessageLength(message); err != nil {
		return err
	}
	if err := t.openChat(ctx); err != nil {
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

// ChatHistory scrapes the chat pane items.
func (t *Teams) ChatHistory(ctx context.Context) (provider.ChatHistory, error) {
	var history provider.ChatHistory
	if err := t.openChat(ctx); err != nil {
		return history, err
	}

	err := evaluateJSON(ctx, `(() => {
		const out = [];
		for (const el of document.querySelectorAll('[data-tid="chat-pane-item"]')) {
			const content = el.querySelector('[data-tid="chat-pane-message"]');
			if (!content) continue;
			const time = el.querySelector("time[datetime]");
			const author = el.querySelector('[data-tid="message-author-name"]');
			out.push({
				text: content.innerText.trim(),
				timestamp: time ? time.getAttribute("datetime") : null,
				sender: author ? author.textContent.trim() : null,
			});
		}
		return out;
	})()`, &history.Messages)
	if err != nil {
		return history, fmt.Errorf("scrape chat history: %w", err)
	}
	return history, nil
}

// Participants opens the people pane and scrapes the roster.
func (t *Teams) Participants(ctx context.Context) ([]provider.Participant, error) {
	var visible bool
	_ = evaluateJSON(ctx, `!!document.querySelector('div[aria-label="Attendees"][role="tree"]')`, &visible)
	if !visible {
		if err := clickButton(ctx, `^people`, ``); err != nil {
			return nil, fmt.Errorf("open participants: %w", err)
		}
		if err := waitFor(ctx,
			`!!document.querySelector('div[aria-label="Attendees"][role="tree"]')`,
			5*time.Second); err != nil {
			return nil, fmt.Errorf("participants list not visible: %w", err)
		}
	}

	var participants []provider.Participant
	err := evaluateJSON(ctx, `(() => {
		const out = [];
		const tree = document.querySelector('div[aria-label="Attendees"][role="tree"]');
		if (!tree) return out;
		for (const item of tree.querySelectorAll("li[data-cid='roster-participant']")) {
			const label = item.getAttribute("aria-label");
			if (!label) continue;
			const parts = label.split(", ");
			out.push({name: parts[0].trim(), infos: parts.slice(1)});
		}
		return out;
	})()`, &participants)
	if err != nil {
		return nil, fmt.Errorf("scrape participants: %w", err)
	}
	return participants, nil
}

// Mute clicks the mute control when it is present.
func (t *Teams) Mute(ctx context.Context) error {
	_ = clickButton(ctx, `^mute`, `^unmute`)
	return nil
}

// Unmute clicks the unmute control when it is present.
func (t *Teams) Unmute(ctx context.Context) error {
	_ = clickButton(ctx, `^unmute`, ``)
	return nil
}

// ActiveSpeaker reads the observer installed at join time.
func (t *Teams) ActiveSpeaker(ctx context.Context) (string, error) {
	return readActiveSpeaker(ctx)
}

// installActiveSpeakerObserver watches roster tiles with a speaking
// indicator.
func (t *Teams) installActiveSpeakerObserver(ctx context.Context, ownName string) error {
	script := fmt.Sprintf(`(() => {
		const ownName = %q;
		const find = () => {
			for (const tile of document.querySelectorAll('[data-tid*="participant"], [data-cid="roster-participant"]')) {
				if (tile.querySelector('[data-tid="voice-level-stream-outline"], [class*="speaking"]')) {
					const label = tile.getAttribute("aria-label") || tile.innerText || "";
					const name = label.split(",")[0].trim();
					if (name && name !== ownName) return name;
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

// openChat makes the chat input visible.
func (t *Teams) openChat(ctx context.Context) error {
	var visible bool
	_ = evaluateJSON(ctx, `!!document.querySelector("div[contenteditable='true']")`, &visible)
	if visible {
		return nil
	}
	if err := clickButton(ctx, `^chat`, ``); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	if err := waitFor(ctx,
		`!!document.querySelector("div[contenteditable='true']")`,
		5*time.Second); err != nil {
		return fmt.Errorf("chat input not visible: %w", err)
	}
	return nil
}
