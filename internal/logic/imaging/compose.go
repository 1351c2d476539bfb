package imaging

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/photobooth/internal/logic/geometry"
)

// ErrFrameSizeMismatch is returned when frames of different sizes are composed.
var ErrFrameSizeMismatch = errors.New("frame size mismatch")

// Compose copies frames into a new buffer following plan. Frame i lands at
// plan.Offset(i); frames must all be plan.FrameWidth x plan.FrameHeight.
func Compose(plan *geometry.Plan, frames []PixelBuffer) (PixelBuffer, error) {
	if len(frames) != plan.Frames() {
		return PixelBuffer{}, fmt.Errorf("layout expects %d frames, got %d", plan.Frames(), len(frames))
	}

	out := New(plan.Width(), plan.Height())
	rowLen := plan.FrameWidth * 4
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			return PixelBuffer{}, fmt.Errorf("frame %d: %w", i, err)
		}
		if f.Width != plan.FrameWidth || f.Height != plan.FrameHeight {
			return PixelBuffer{}, fmt.Errorf("%w: frame %d is %dx%d, want %dx%d",
				ErrFrameSizeMismatch, i, f.Width, f.Height, plan.FrameWidth, plan.FrameHeight)
		}

		x0, y0 := plan.Offset(i)
		for row := 0; row < f.Height; row++ {
			dst := ((y0+row)*out.Width + x0) * 4
			src := row * rowLen
			copy(out.Pix[dst:dst+rowLen], f.Pix[src:src+rowLen])
		}
	}
	return out, nil
}

// StackVertical concatenates frames top to bottom in slice order.
func StackVertical(frames []PixelBuffer) (PixelBuffer, error) {
	if len(frames) == 0 {
		return PixelBuffer{}, fmt.Errorf("%w: no frames to stack", ErrInvalidBuffer)
	}
	plan, err := geometry.PlanStrip(frames[0].Width, frames[0].Height, len(frames))
	if err != nil {
		return PixelBuffer{}, fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}
	return Compose(plan, frames)
}
