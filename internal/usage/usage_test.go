package usage

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalsAggregateByService(t *testing.T) {
	tr := NewTracker()
	tr.Add("whisper_stt", map[string]float64{"seconds": 1.5}, nil)
	tr.Add("whisper_stt", map[string]float64{"seconds": 2.5}, nil)
	tr.Add("kokoro_tts", map[string]float64{"characters": 40}, map[string]string{"voice": "af_heart"})

	totals := tr.Totals()
	require.Len(t, totals, 2)

	assert.Equal(t, "kokoro_tts", totals[0].Service)
	assert.Equal(t, 1, totals[0].Requests)
	assert.Equal(t, 40.0, totals[0].Counts["characters"])

	assert.Equal(t, "whisper_stt", totals[1].Service)
	assert.Equal(t, 2, totals[1].Requests)
	assert.Equal(t, 4.0, totals[1].Counts["seconds"])
}

func TestEntriesAreCopies(t *testing.T) {
	tr := NewTracker()
	counts := map[string]float64{"seconds": 1}
	tr.Add("deepgram_stt", counts, nil)

	counts["seconds"] = 99
	assert.Equal(t, 1.0, tr.Entries()[0].Counts["seconds"])
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.Add("whisper_stt", map[string]float64{"seconds": 1}, nil)
	tr.Reset()

	assert.Empty(t, tr.Entries())
	assert.Empty(t, tr.Totals())
}

func TestMarshalJSON(t *testing.T) {
	tr := NewTracker()
	tr.Add("elevenlabs_tts", map[string]float64{"characters": 12}, map[string]string{"model": "eleven_flash_v2_5"})

	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var report struct {
		Totals  []ServiceTotal `json:"totals"`
		Entries []Entry        `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Totals, 1)
	assert.Equal(t, "elevenlabs_tts", report.Totals[0].Service)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "eleven_flash_v2_5", report.Entries[0].Meta["model"])
}

func TestConcurrentAdd(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Add("whisper_stt", map[string]float64{"seconds": 1}, nil)
		}()
	}
	wg.Wait()

	totals := tr.Totals()
	require.Len(t, totals, 1)
	assert.Equal(t, 20.0, totals[0].Counts["seconds"])
}
