package geometry

import "fmt"

// StripFrames is the number of shots in a photo strip.
const StripFrames = 4

// Plan describes how captured frames are laid out on a composite sheet.
// Frames are placed row by row, left to right, frame 0 in the top-left cell.
type Plan struct {
	Columns     int // frames per row
	Rows        int // number of rows
	FrameWidth  int // width of one frame in pixels
	FrameHeight int // height of one frame in pixels
}

// PlanStrip returns the plan for a vertical strip of n frames (one column).
func PlanStrip(frameWidth, frameHeight, n int) (*Plan, error) {
	return PlanGrid(frameWidth, frameHeight, 1, n)
}

// PlanGrid returns a columns x rows plan for frames of the given size.
func PlanGrid(frameWidth, frameHeight, columns, rows int) (*Plan, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %dx%d", frameWidth, frameHeight)
	}
	if columns < 1 || rows < 1 {
		return nil, fmt.Errorf("layout needs at least 1 column and 1 row, got %dx%d", columns, rows)
	}
	return &Plan{
		Columns:     columns,
		Rows:        rows,
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
	}, nil
}

// Frames returns the number of cells in the plan.
func (p *Plan) Frames() int {
	return p.Columns * p.Rows
}

// Width returns the composite width in pixels.
func (p *Plan) Width() int {
	return p.Columns * p.FrameWidth
}

// Height returns the composite height in pixels.
func (p *Plan) Height() int {
	return p.Rows * p.FrameHeight
}

// Offset returns the top-left pixel position of frame i.
// For a strip (1 column) this is (0, i*FrameHeight).
func (p *Plan) Offset(i int) (x, y int) {
	col := i % p.Columns
	row := i / p.Columns
	return col * p.FrameWidth, row * p.FrameHeight
}
