package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM data in a mono RIFF/WAV container. Float32 input
// is converted to 16-bit integer samples first, since that is what the STT
// upload endpoints accept.
func EncodeWAV(data []byte, format Format) ([]byte, error) {
	if format.ByteDepth == ByteDepth32 {
		var err error
		data, err = ConvertByteDepth(data, ByteDepth32, ByteDepth16)
		if err != nil {
			return nil, err
		}
	} else if format.ByteDepth != ByteDepth16 {
		return nil, fmt.Errorf("unsupported byte depth for WAV encoding: %d", format.ByteDepth)
	}

	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := format.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(data)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(data))) //nolint:errcheck
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))                //nolint:errcheck
	binary.Write(buf, binary.LittleEndian, uint16(1))                 //nolint:errcheck // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))          //nolint:errcheck
	binary.Write(buf, binary.LittleEndian, uint32(format.SampleRate)) //nolint:errcheck
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))          //nolint:errcheck
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))        //nolint:errcheck
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))     //nolint:errcheck

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(data))) //nolint:errcheck
	buf.Write(data)

	return buf.Bytes(), nil
}
