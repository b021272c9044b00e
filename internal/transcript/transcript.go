package transcript

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Role attributes a segment to either a meeting participant or the bot.
type Role string

// Speaker roles.
const (
	RoleParticipant Role = "participant"
	RoleAssistant   Role = "assistant"
)

// compactGapSeconds is the largest silence between two segments of the same
// speaker that Compact still merges into one utterance.
const compactGapSeconds = 1.0

// Segment is one transcribed piece of speech. Start and End are seconds
// since the start of the meeting session.
type Segment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Role    Role    `json:"role,omitempty"`
}

// Transcript is a deduplicated, start-ordered collection of segments.
type Transcript struct {
	mu       sync.RWMutex
	segments map[Segment]struct{}
}

// New creates an empty transcript.
func New(segments ...Segment) *Transcript {
	t := &Transcript{segments: make(map[Segment]struct{})}
	for _, s := range segments {
		t.segments[s] = struct{}{}
	}
	return t
}

// Add inserts a segment. Adding an identical segment twice is a no-op,
// which makes retried STT streams idempotent.
func (t *Transcript) Add(s Segment) {
	t.mu.Lock()
	t.segments[s] = struct{}{}
	t.mu.Unlock()
}

// Len returns the number of segments.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.segments)
}

// Segments returns all segments sorted by start time, with end time and
// text as tie breakers so the order is deterministic.
func (t *Transcript) Segments() []Segment {
	t.mu.RLock()
	out := make([]Segment, 0, len(t.segments))
	for s := range t.segments {
		out = append(out, s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// Text returns the full transcript text in segment order.
func (t *Transcript) Text() string {
	segs := t.Segments()
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// Speakers returns the distinct non-empty speaker names.
func (t *Transcript) Speakers() []string {
	t.mu.RLock()
	seen := make(map[string]struct{})
	for s := range t.segments {
		if s.Speaker != "" {
			seen[s.Speaker] = struct{}{}
		}
	}
	t.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Before returns a new transcript containing segments that start before the
// given time in seconds.
func (t *Transcript) Before(seconds float64) *Transcript {
	return t.filter(func(s Segment) bool { return s.Start < seconds })
}

// After returns a new transcript containing segments that start at or after
// the given time in seconds.
func (t *Transcript) After(seconds float64) *Transcript {
	return t.filter(func(s Segment) bool { return s.Start >= seconds })
}

// WithRole returns a new transcript containing only segments of the given
// role. Segments without an explicit role count as participant speech.
func (t *Transcript) WithRole(role Role) *Transcript {
	return t.filter(func(s Segment) bool {
		if s.Role == "" {
			return role == RoleParticipant
		}
		return s.Role == role
	})
}

func (t *Transcript) filter(keep func(Segment) bool) *Transcript {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := New()
	for s := range t.segments {
		if keep(s) {
			out.segments[s] = struct{}{}
		}
	}
	return out
}

// Compact merges consecutive segments of the same speaker and role into
// utterances. Segments separated by more than a short silence stay apart
// so distinct utterances keep their own timestamps.
func (t *Transcript) Compact() *Transcript {
	segs := t.Segments()
	out := New()
	if len(segs) == 0 {
		return out
	}

	cur := segs[0]
	for _, s := range segs[1:] {
		sameVoice := s.Speaker == cur.Speaker && s.Role == cur.Role
		if sameVoice && s.Start-cur.End <= compactGapSeconds {
			cur.Text = strings.TrimSpace(cur.Text + " " + s.Text)
			if s.End > cur.End {
				cur.End = s.End
			}
			continue
		}
		out.Add(cur)
		cur = s
	}
	out.Add(cur)
	return out
}

// MarshalJSON encodes the transcript as {"segments": [...]} with segments
// in start order.
func (t *Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Segments []Segment `json:"segments"`
	}{Segments: t.Segments()})
}

// UnmarshalJSON decodes the {"segments": [...]} form produced by
// MarshalJSON.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var wire struct {
		Segments []Segment `json:"segments"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.segments = make(map[Segment]struct{}, len(wire.Segments))
	for _, s := range wire.Segments {
		t.segments[s] = struct{}{}
	}
	return nil
}
