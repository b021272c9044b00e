package browser

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
)

const (
	// snapshotBorderFraction trims browser chrome and meeting UI rails
	// from the screenshot edges before scaling.
	snapshotBorderFraction = 0.1
	snapshotJPEGQuality    = 90
)

// scaleToJPEG crops the border of an encoded screenshot and scales it
// down to width x height JPEG bytes.
func scaleToJPEG(encoded []byte, width, height int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	cropped := cropBorder(src, snapshotBorderFraction)
	scaled := resizeBilinear(cropped, width, height)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: snapshotJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// cropBorder returns the sub-rectangle of img with fraction of each
// dimension removed from every edge.
func cropBorder(img image.Image, fraction float64) image.Image {
	b := img.Bounds()
	dx := int(float64(b.Dx()) * fraction)
	dy := int(float64(b.Dy()) * fraction)
	r := image.Rect(b.Min.X+dx, b.Min.Y+dy, b.Max.X-dx, b.Max.Y-dy)
	if r.Empty() {
		return img
	}
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	return img
}

// resizeBilinear scales img to width x height.
func resizeBilinear(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if b.Dx() == 0 || b.Dy() == 0 || width == 0 || height == 0 {
		return dst
	}

	xRatio := float64(b.Dx()) / float64(width)
	yRatio := float64(b.Dy()) / float64(height)

	for y := 0; y < height; y++ {
		sy := (float64(y)+0.5)*yRatio - 0.5
		y0 := int(sy)
		if y0 < 0 {
			y0 = 0
		}
		y1 := y0 + 1
		if y1 > b.Dy()-1 {
			y1 = b.Dy() - 1
		}
		fy := sy - float64(y0)
		if fy < 0 {
			fy = 0
		}

		for x := 0; x < width; x++ {
			sx := (float64(x)+0.5)*xRatio - 0.5
			x0 := int(sx)
			if x0 < 0 {
				x0 = 0
			}
			x1 := x0 + 1
			if x1 > b.Dx()-1 {
				x1 = b.Dx() - 1
			}
			fx := sx - float64(x0)
			if fx < 0 {
				fx = 0
			}

			c00 := pixel(img, b.Min.X+x0, b.Min.Y+y0)
			c10 := pixel(img, b.Min.X+x1, b.Min.Y+y0)
			c01 := pixel(img, b.Min.X+x0, b.Min.Y+y1)
			c11 := pixel(img, b.Min.X+x1, b.Min.Y+y1)

			o := dst.PixOffset(x, y)
			for i := 0; i < 4; i++ {
				top := float64(c00[i])*(1-fx) + float64(c10[i])*fx
				bot := float64(c01[i])*(1-fx) + float64(c11[i])*fx
				dst.Pix[o+i] = uint8(top*(1-fy) + bot*fy + 0.5)
			}
		}
	}
	return dst
}

func pixel(img image.Image, x, y int) [4]uint8 {
	r, g, b, a := img.At(x, y).RGBA()
	return [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}
