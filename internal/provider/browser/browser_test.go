package browser

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinly-ai/joinly/internal/audio"
	"github.com/joinly-ai/joinly/internal/provider"
)

func TestNotInMeetingGuards(t *testing.T) {
	p := New(Config{})

	assert.ErrorIs(t, p.Leave(context.Background()), provider.ErrNotInMeeting)
	assert.ErrorIs(t, p.SendChatMessage(context.Background(), "hi"), provider.ErrNotInMeeting)
	assert.ErrorIs(t, p.Mute(context.Background()), provider.ErrNotInMeeting)
	assert.ErrorIs(t, p.Unmute(context.Background()), provider.ErrNotInMeeting)

	_, err := p.GetChatHistory(context.Background())
	assert.ErrorIs(t, err, provider.ErrNotInMeeting)
	_, err = p.GetParticipants(context.Background())
	assert.ErrorIs(t, err, provider.ErrNotInMeeting)
	_, err = p.Snapshot(context.Background())
	assert.ErrorIs(t, err, provider.ErrNotInMeeting)
}

func TestJoinRequiresStart(t *testing.T) {
	p := New(Config{})
	err := p.Join(context.Background(), "https://meet.google.com/abc-defg-hij", "bot", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestScaleToJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 360))
	for y := 0; y < 360; y++ {
		for x := 0; x < 640; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := scaleToJPEG(buf.Bytes(), 512, 288)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 288, img.Bounds().Dy())
}

func TestScaleToJPEGRejectsGarbage(t *testing.T) {
	_, err := scaleToJPEG([]byte("not an image"), 512, 288)
	assert.Error(t, err)
}

func TestCropBorder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	cropped := cropBorder(src, 0.1)
	assert.Equal(t, 80, cropped.Bounds().Dx())
	assert.Equal(t, 40, cropped.Bounds().Dy())
}

func TestResizeBilinearUniform(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.Set(x, y, color.RGBA{R: 120, G: 30, B: 200, A: 255})
		}
	}
	dst := resizeBilinear(src, 4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b, a := dst.At(x, y).RGBA()
			assert.Equal(t, uint32(120), r>>8)
			assert.Equal(t, uint32(30), g>>8)
			assert.Equal(t, uint32(200), b>>8)
			assert.Equal(t, uint32(255), a>>8)
		}
	}
}

type staticReader struct {
	chunk audio.Chunk
}

func (r *staticReader) Format() audio.Format {
	return audio.Format{SampleRate: 16000, ByteDepth: audio.ByteDepth32}
}

func (r *staticReader) Read(_ context.Context) (audio.Chunk, error) {
	return r.chunk, nil
}

func TestAttributedReaderStampsSpeaker(t *testing.T) {
	var name atomic.Value
	name.Store("Ada Lovelace")
	r := &attributedReader{
		inner: &staticReader{chunk: audio.Chunk{Data: []byte{1, 2, 3, 4}, TimeNS: 42}},
		name:  &name,
	}

	chunk, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", chunk.Speaker)
	assert.Equal(t, int64(42), chunk.TimeNS)

	name.Store("")
	chunk, err = r.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunk.Speaker)
}
