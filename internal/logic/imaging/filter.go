package imaging

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedFilter is returned for a filter name outside the known set.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// Kind selects a filter.
type Kind string

const (
	KindNone       Kind = "none"
	KindSepia      Kind = "sepia"
	KindGrayscale  Kind = "grayscale"
	KindBlur       Kind = "blur"
	KindBrightness Kind = "brightness"
	KindContrast   Kind = "contrast"
	KindSaturate   Kind = "saturate"
	KindVintage    Kind = "vintage"
	KindSoftKorean Kind = "softkorean"

	// KindSoftKoreanBloom is the multiplicative soft-look variant
	// (brightness 1.15, contrast 0.85, saturate 1.2). KindSoftKorean is
	// the additive warm tone.
	KindSoftKoreanBloom Kind = "softkorean-bloom"
)

// BlurRadius is the box blur radius (5x5 kernel).
const BlurRadius = 2

var kinds = []Kind{
	KindNone,
	KindSepia,
	KindGrayscale,
	KindBlur,
	KindBrightness,
	KindContrast,
	KindSaturate,
	KindVintage,
	KindSoftKorean,
	KindSoftKoreanBloom,
}

// Kinds returns every supported filter in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is a known filter.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ParseKind maps a filter name to a Kind. The empty string means none.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindNone, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFilter, s)
	}
	return k, nil
}

// pointFn maps one pixel's color channels. Results are rounded and clamped
// by the caller, alpha is never passed in.
type pointFn func(r, g, b float64) (float64, float64, float64)

var pointFilters = map[Kind]pointFn{
	KindSepia: func(r, g, b float64) (float64, float64, float64) {
		return 0.393*r + 0.769*g + 0.189*b,
			0.349*r + 0.686*g + 0.168*b,
			0.272*r + 0.534*g + 0.131*b
	},
	KindGrayscale: func(r, g, b float64) (float64, float64, float64) {
		y := luma(r, g, b)
		return y, y, y
	},
	KindBrightness: func(r, g, b float64) (float64, float64, float64) {
		return r * 1.5, g * 1.5, b * 1.5
	},
	KindContrast: func(r, g, b float64) (float64, float64, float64) {
		return contrast(r, 1.5), contrast(g, 1.5), contrast(b, 1.5)
	},
	KindSaturate: func(r, g, b float64) (float64, float64, float64) {
		return saturate(r, g, b, 1.5)
	},
	KindVintage: func(r, g, b float64) (float64, float64, float64) {
		return 0.9*r + 0.5*g + 0.1*b,
			0.3*r + 0.8*g + 0.1*b,
			0.2*r + 0.3*g + 0.5*b
	},
	KindSoftKorean: func(r, g, b float64) (float64, float64, float64) {
		return r + 20, g + 10, b - 5
	},
	KindSoftKoreanBloom: func(r, g, b float64) (float64, float64, float64) {
		r, g, b = clampf(r*1.15), clampf(g*1.15), clampf(b*1.15)
		r, g, b = clampf(contrast(r, 0.85)), clampf(contrast(g, 0.85)), clampf(contrast(b, 0.85))
		return saturate(r, g, b, 1.2)
	},
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func contrast(c, amount float64) float64 {
	return (c-128)*amount + 128
}

func saturate(r, g, b, amount float64) (float64, float64, float64) {
	y := luma(r, g, b)
	return y + (r-y)*amount, y + (g-y)*amount, y + (b-y)*amount
}

func clampf(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// toByte rounds half to even (the canvas Uint8ClampedArray convention)
// and clamps to [0,255].
func toByte(v float64) uint8 {
	return uint8(clampf(math.RoundToEven(v)))
}

// Apply runs filter kind over buf and returns the result.
//
// buf is never modified. For KindNone the input buffer itself is returned
// (same backing array); for every other kind the result is a new buffer
// owned by the caller. Alpha samples are copied through untouched.
func Apply(buf PixelBuffer, kind Kind) (PixelBuffer, error) {
	if !kind.Valid() {
		return PixelBuffer{}, fmt.Errorf("%w: %q", ErrUnsupportedFilter, string(kind))
	}
	if err := buf.Validate(); err != nil {
		return PixelBuffer{}, err
	}

	switch kind {
	case KindNone:
		return buf, nil
	case KindBlur:
		return boxBlur(buf, BlurRadius), nil
	}

	fn := pointFilters[kind]
	out := New(buf.Width, buf.Height)
	src, dst := buf.Pix, out.Pix
	for i := 0; i < len(src); i += 4 {
		r, g, b := fn(float64(src[i]), float64(src[i+1]), float64(src[i+2]))
		dst[i] = toByte(r)
		dst[i+1] = toByte(g)
		dst[i+2] = toByte(b)
		dst[i+3] = src[i+3]
	}
	return out, nil
}

// boxBlur averages each color channel over the in-bounds neighbors within
// radius. Edge pixels divide by the number of neighbors actually present.
// Reads come from src only; results go to a separate buffer.
func boxBlur(src PixelBuffer, radius int) PixelBuffer {
	out := New(src.Width, src.Height)
	w, h := src.Width, src.Height

	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-radius), min(h-1, y+radius)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-radius), min(w-1, x+radius)

			var sr, sg, sb, n int
			for ny := y0; ny <= y1; ny++ {
				row := ny * w
				for nx := x0; nx <= x1; nx++ {
					i := (row + nx) * 4
					sr += int(src.Pix[i])
					sg += int(src.Pix[i+1])
					sb += int(src.Pix[i+2])
					n++
				}
			}

			i := (y*w + x) * 4
			out.Pix[i] = uint8((sr + n/2) / n)
			out.Pix[i+1] = uint8((sg + n/2) / n)
			out.Pix[i+2] = uint8((sb + n/2) / n)
			out.Pix[i+3] = src.Pix[i+3]
		}
	}
	return out
}
