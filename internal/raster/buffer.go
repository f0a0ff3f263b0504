// Package raster turns encoded image bytes into bounded, in-memory pixel
// buffers that the compression and enhancement engines operate on.
package raster

import (
	"image"

	"github.com/disintegration/imaging"
)

// PixelBuffer is a decoded raster: non-premultiplied RGBA, four bytes per
// pixel, rows packed without padding.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer allocates a zeroed buffer of the given size.
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// FromImage rasterizes img into a new buffer.
func FromImage(img image.Image) *PixelBuffer {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: nrgba.Pix}
}

// Image returns an *image.NRGBA view sharing the buffer's pixels.
func (b *PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// Offset returns the index of the first byte of pixel (x, y).
func (b *PixelBuffer) Offset(x, y int) int {
	return (y*b.Width + x) * 4
}
