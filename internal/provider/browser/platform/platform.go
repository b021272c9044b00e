// Package platform implements per-platform meeting controls (Google
// Meet, Microsoft Teams, Zoom) on top of a Chrome DevTools page context.
// Controllers drive the meeting UI: joining, leaving, chat, the
// participant list, mute state and active speaker observation.
package platform

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/joinly-ai/joinly/internal/provider"
)

// MaxChatMessageLength bounds outgoing chat messages.
const MaxChatMessageLength = 500

// Controller drives one meeting platform inside a browser tab. The
// context passed to each method must be a chromedp tab context.
type Controller interface {
	Name() string
	Join(ctx context.Context, url, name, passcode string) error
	Leave(ctx context.Context) error
	SendChatMessage(ctx context.Context, message string) error
	ChatHistory(ctx context.Context) (provider.ChatHistory, error)
	Participants(ctx context.Context) ([]provider.Participant, error)
	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error
	// ActiveSpeaker returns the currently speaking participant, or "".
	ActiveSpeaker(ctx context.Context) (string, error)
}

var (
	meetURLPattern  = regexp.MustCompile(`^(?:https?://)?(?:www\.)?meet\.google\.com/`)
	teamsURLPattern = regexp.MustCompile(`^(?:https?://)?(?:[a-z0-9-]+\.)?teams\.(?:microsoft|live)\.com/`)
	zoomURLPattern  = regexp.MustCompile(`^(?:https?://)?(?:[a-z0-9-]+\.)?zoom\.us/`)
)

// Select returns the controller responsible for a meeting URL.
func Select(url string) (Controller, error) {
	switch {
	case meetURLPattern.MatchString(url):
		return &GoogleMeet{}, nil
	case teamsURLPattern.MatchString(url):
		return &Teams{}, nil
	case zoomURLPattern.MatchString(url):
		return &Zoom{}, nil
	}
	return nil, fmt.Errorf("%w: no platform matches URL %q (supported: GoogleMeet, Teams, Zoom)",
		provider.ErrNotSupported, url)
}

// checkMessageLength rejects chat messages over the platform limit.
func checkMessageLength(message string) error {
	if len(message) > MaxChatMessageLength {
		return fmt.Errorf("message exceeds the maximum length of %d characters, got %d",
			MaxChatMessageLength, len(message))
	}
	return nil
}

// clickButton clicks the first visible button whose accessible text
// matches the pattern, skipping buttons matching the exclude pattern.
func clickButton(ctx context.Context, pattern, exclude string) error {
	var clicked bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
		const rx = new RegExp(%q, "i");
		const ex = %q ? new RegExp(%q, "i") : null;
		for (const b of document.querySelectorAll('button, [role="button"]')) {
			const text = (b.innerText || b.getAttribute("aria-label") || "").trim();
			if (!rx.test(text)) continue;
			if (ex && ex.test(text)) continue;
			if (b.offsetParent === null) continue;
			b.click();
			return true;
		}
		return false;
	})()`, pattern, exclude, exclude), &clicked))
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no visible button matching %q", pattern)
	}
	return nil
}

// waitFor polls a boolean JS expression until it is true or the timeout
// elapses.
func waitFor(ctx context.Context, expr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// fillInput sets the value of the first element matching the selector
// and fires the events frameworks listen for.
func fillInput(ctx context.Context, selector, value string) error {
	var filled bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const setter = Object.getOwnPropertyDescriptor(
			Object.getPrototypeOf(el), "value")?.set;
		if (setter) setter.call(el, %q); else el.value = %q;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	})()`, selector, value, value), &filled))
	if err != nil {
		return err
	}
	if !filled {
		return fmt.Errorf("no element matching %q", selector)
	}
	return nil
}

// evaluateJSON evaluates an expression returning a JSON-serializable
// value into out.
func evaluateJSON(ctx context.Context, expr string, out any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(expr, out))
}

// activeSpeakerVar is the page global the observer scripts write to.
const activeSpeakerVar = "window.__joinlyActiveSpeaker"

// readActiveSpeaker reads the observer output.
func readActiveSpeaker(ctx context.Context) (string, error) {
	var name string
	expr := fmt.Sprintf("(%s || '')", activeSpeakerVar)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &name)); err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}
