package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvRoundTrip(t *testing.T) {
	env := NewEnv()
	env.Set("JOINLY_TEST_SINK", "virt.1")

	assert.Equal(t, "virt.1", env.Get("JOINLY_TEST_SINK"))
	assert.Contains(t, env.List(), "JOINLY_TEST_SINK=virt.1")

	env.Unset("JOINLY_TEST_SINK")
	assert.Equal(t, "", env.Get("JOINLY_TEST_SINK"))
}

func TestEnvListIsSorted(t *testing.T) {
	env := NewEnv()
	env.Set("ZZZ_LAST", "1")
	env.Set("AAA_FIRST", "1")

	list := env.List()
	assert.True(t, sortedStrings(list), "environment must be deterministic")
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestLookExecutableMissing(t *testing.T) {
	_, err := lookExecutable("definitely-not-a-real-binary-1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found on PATH")
}

func TestWaitForPathReturnsWhenPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	start := time.Now()
	waitForPath(context.Background(), path)
	assert.Less(t, time.Since(start), readinessInterval)
}

func TestWaitForPathProceedsAfterBound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	start := time.Now()
	waitForPath(ctx, filepath.Join(t.TempDir(), "never"))
	// The canceled context stops the poll early; without cancelation
	// the bound is attempts * interval.
	assert.Less(t, time.Since(start), time.Duration(readinessAttempts)*readinessInterval+time.Second)
}

func TestMicrophoneChunkSize(t *testing.T) {
	m := NewVirtualMicrophone(nil, NewEnv())
	// 10ms of 24 kHz int16 mono.
	assert.Equal(t, 480, m.ChunkSize())
}

func TestSpeakerReadTimestamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fifo.pcm")
	require.NoError(t, os.WriteFile(path, make([]byte, 512*4*2), 0o600))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	s := NewVirtualSpeaker(nil, NewEnv())
	s.fifo = f

	chunk, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), chunk.TimeNS)
	assert.Len(t, chunk.Data, 512*4)

	chunk, err = s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(512*1e9/16000), chunk.TimeNS)
}
