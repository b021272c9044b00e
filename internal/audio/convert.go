package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ConvertByteDepth converts PCM data between 16-bit integer and 32-bit
// float representations. Data in the target depth is returned unchanged.
func ConvertByteDepth(data []byte, source, target int) ([]byte, error) {
	if source == target {
		return data, nil
	}

	switch {
	case source == ByteDepth32 && target == ByteDepth16:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("float32 PCM length %d is not a multiple of 4", len(data))
		}
		out := make([]byte, len(data)/2)
		for i := 0; i < len(data); i += 4 {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[i:]))
			s := f * 32767
			if s > 32767 {
				s = 32767
			} else if s < -32768 {
				s = -32768
			}
			binary.LittleEndian.PutUint16(out[i/2:], uint16(int16(s)))
		}
		return out, nil

	case source == ByteDepth16 && target == ByteDepth32:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("int16 PCM length %d is not a multiple of 2", len(data))
		}
		out := make([]byte, len(data)*2)
		for i := 0; i < len(data); i += 2 {
			s := int16(binary.LittleEndian.Uint16(data[i:]))
			f := float32(s) / 32767
			binary.LittleEndian.PutUint32(out[i*2:], math.Float32bits(f))
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported byte depth conversion: %d -> %d", source, target)
}

// Convert converts PCM data from one format to another. Only byte-depth
// conversion is supported; a sample rate mismatch is an error.
func Convert(data []byte, source, target Format) ([]byte, error) {
	if source.SampleRate != target.SampleRate {
		return nil, fmt.Errorf("cannot resample %d Hz to %d Hz", source.SampleRate, target.SampleRate)
	}
	return ConvertByteDepth(data, source.ByteDepth, target.ByteDepth)
}

// Samples16 decodes 16-bit PCM into int16 samples.
func Samples16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Samples32 decodes 32-bit float PCM into float32 samples.
func Samples32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
