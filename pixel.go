package img2chars

import (
	"errors"
	"fmt"
	"image"
)

// ErrConfig is the sentinel for configuration errors: invalid generation
// options, empty input buffers, mismatched template dimensions. These are
// rejected synchronously and never retried.
var ErrConfig = errors.New("invalid configuration")

// PixelBuffer holds a decoded image as row-major, non-premultiplied RGBA
// bytes. It is treated as immutable once captured; the pipeline never
// writes to Pix.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8 // 4 bytes per pixel, len == Width*Height*4
}

// NewPixelBuffer wraps raw RGBA bytes in a PixelBuffer. The byte slice
// length must match the dimensions exactly.
func NewPixelBuffer(width, height int, pix []uint8) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pixel buffer dimensions %dx%d: %w",
			width, height, ErrConfig)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("pixel buffer has %d bytes, want %d: %w",
			len(pix), width*height*4, ErrConfig)
	}
	return &PixelBuffer{Width: width, Height: height, Pix: pix}, nil
}

// BufferFromImage captures any image.Image into a PixelBuffer, preserving
// the alpha channel.
func BufferFromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return &PixelBuffer{Width: w, Height: h, Pix: dst.Pix}
}

// toNRGBA exposes the buffer as an image.NRGBA sharing the same pixel
// memory. Callers must not write through the returned image.
func (b *PixelBuffer) toNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// empty reports whether the buffer has no pixels.
func (b *PixelBuffer) empty() bool {
	return b == nil || b.Width <= 0 || b.Height <= 0 || len(b.Pix) == 0
}
