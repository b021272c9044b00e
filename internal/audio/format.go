package audio

import "time"

// Supported PCM byte depths.
const (
	ByteDepth16 = 2 // int16 little-endian
	ByteDepth32 = 4 // float32 little-endian
)

// Format describes mono PCM audio.
type Format struct {
	// SampleRate in Hz.
	SampleRate int

	// ByteDepth is the size of one sample in bytes: ByteDepth16 for
	// int16 PCM or ByteDepth32 for float32 PCM.
	ByteDepth int
}

// BytesPerSecond returns the raw data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.ByteDepth
}

// Duration returns the play time of n bytes in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// Seconds returns the play time of n bytes in this format as seconds.
func (f Format) Seconds(n int) float64 {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(n) / float64(bps)
}

// Chunk is a piece of captured PCM audio. TimeNS is the capture timestamp
// in nanoseconds relative to the start of the session. Speaker carries the
// active speaker name at capture time when the meeting platform exposes it.
type Chunk struct {
	Data    []byte
	TimeNS  int64
	Speaker string
}
