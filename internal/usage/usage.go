// Package usage tracks per-service usage counters for paid backends
// (seconds transcribed, characters synthesized) so MCP clients can read
// a cost report through the usage://current resource.
package usage

import (
	"encoding/json"
	"sort"
	"sync"
)

// Entry is one recorded usage event.
type Entry struct {
	Service string             `json:"service"`
	Counts  map[string]float64 `json:"usage"`
	Meta    map[string]string  `json:"meta,omitempty"`
}

// ServiceTotal aggregates all entries recorded for one service.
type ServiceTotal struct {
	Service  string             `json:"service"`
	Requests int                `json:"requests"`
	Counts   map[string]float64 `json:"usage"`
}

// Tracker accumulates usage entries. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add records a usage event for a service, for example
// Add("whisper_stt", map[string]float64{"seconds": 3.2}, nil).
func (t *Tracker) Add(service string, counts map[string]float64, meta map[string]string) {
	e := Entry{Service: service, Counts: make(map[string]float64, len(counts))}
	for k, v := range counts {
		e.Counts[k] = v
	}
	if len(meta) > 0 {
		e.Meta = make(map[string]string, len(meta))
		for k, v := range meta {
			e.Meta[k] = v
		}
	}

	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Entries returns a copy of all recorded entries in order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Totals aggregates entries by service, sorted by service name.
func (t *Tracker) Totals() []ServiceTotal {
	t.mu.Lock()
	byService := make(map[string]*ServiceTotal)
	for _, e := range t.entries {
		total, ok := byService[e.Service]
		if !ok {
			total = &ServiceTotal{Service: e.Service, Counts: make(map[string]float64)}
			byService[e.Service] = total
		}
		total.Requests++
		for k, v := range e.Counts {
			total.Counts[k] += v
		}
	}
	t.mu.Unlock()

	out := make([]ServiceTotal, 0, len(byService))
	for _, total := range byService {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Reset drops all recorded entries.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

// MarshalJSON encodes the report read through usage://current: aggregated
// totals per service plus the raw entry list.
func (t *Tracker) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Totals  []ServiceTotal `json:"totals"`
		Entries []Entry        `json:"entries"`
	}{Totals: t.Totals(), Entries: t.Entries()})
}
