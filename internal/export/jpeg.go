package export

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/cjeanneret/photobooth/internal/logic/imaging"
)

// ErrEncoding is returned when a buffer cannot be turned into a JPEG.
var ErrEncoding = errors.New("encoding failed")

// DefaultQuality matches a 0.9 canvas export quality.
const DefaultQuality = 90

// EncodeJPEG encodes buf as a baseline JPEG. quality is clamped to
// [1,100]; zero selects DefaultQuality. Alpha is dropped.
func EncodeJPEG(buf imaging.PixelBuffer, quality int) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	switch {
	case quality == 0:
		quality = DefaultQuality
	case quality < 1:
		quality = 1
	case quality > 100:
		quality = 100
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, buf.ToImage(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return out.Bytes(), nil
}
