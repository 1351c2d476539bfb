package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrInvalidBuffer is returned when a PixelBuffer breaks the
// len(Pix) == Width*Height*4 invariant.
var ErrInvalidBuffer = errors.New("invalid pixel buffer")

// PixelBuffer is a frame of non-premultiplied RGBA samples, row-major,
// 4 bytes per pixel: len(Pix) == Width*Height*4.
//
// Buffers handed to Apply, Mirror and Compose are treated as read-only.
// Functions that return a new buffer give the caller sole ownership of it.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed (transparent black) buffer.
func New(width, height int) PixelBuffer {
	return PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// Validate checks the size invariant.
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*4 {
		return fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidBuffer, len(b.Pix), b.Width, b.Height)
	}
	return nil
}

// Clone returns a deep copy.
func (b PixelBuffer) Clone() PixelBuffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return PixelBuffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// Equal reports whether both buffers have the same size and samples.
func (b PixelBuffer) Equal(o PixelBuffer) bool {
	if b.Width != o.Width || b.Height != o.Height || len(b.Pix) != len(o.Pix) {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// At returns the RGBA samples of pixel (x, y).
func (b PixelBuffer) At(x, y int) (r, g, bl, a uint8) {
	i := (y*b.Width + x) * 4
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Set writes the RGBA samples of pixel (x, y).
func (b PixelBuffer) Set(x, y int, r, g, bl, a uint8) {
	i := (y*b.Width + x) * 4
	b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = r, g, bl, a
}

// Fill returns a buffer where every pixel has the given color.
func Fill(width, height int, r, g, bl, a uint8) PixelBuffer {
	buf := New(width, height)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = r, g, bl, a
	}
	return buf
}

// ToImage wraps a copy of the samples as an *image.NRGBA.
func (b PixelBuffer) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	copy(img.Pix, b.Pix)
	return img
}

// FromImage converts any image.Image into a PixelBuffer.
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	buf := New(bounds.Dx(), bounds.Dy())

	if n, ok := img.(*image.NRGBA); ok && n.Stride == buf.Width*4 && bounds.Min == (image.Point{}) {
		copy(buf.Pix, n.Pix)
		return buf
	}

	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			buf.Set(x, y, c.R, c.G, c.B, c.A)
		}
	}
	return buf
}

// Mirror returns a horizontally flipped copy (front-camera convention).
func Mirror(b PixelBuffer) (PixelBuffer, error) {
	if err := b.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	out := New(b.Width, b.Height)
	rowLen := b.Width * 4
	for y := 0; y < b.Height; y++ {
		row := y * rowLen
		for x := 0; x < b.Width; x++ {
			src := row + x*4
			dst := row + (b.Width-1-x)*4
			copy(out.Pix[dst:dst+4], b.Pix[src:src+4])
		}
	}
	return out, nil
}
