package camera

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/photobooth/internal/logic/imaging"
)

// colorBars are the seven classic test-pattern bars, left to right.
var colorBars = [][3]uint8{
	{255, 255, 255},
	{255, 255, 0},
	{0, 255, 255},
	{0, 255, 0},
	{255, 0, 255},
	{255, 0, 0},
	{0, 0, 255},
}

// Synthetic is a Device producing scrolling color bars. It stands in for
// a webcam on machines without one.
type Synthetic struct {
	mu     sync.Mutex
	width  int
	height int
	open   bool
	tick   int
}

// NewSynthetic returns a closed test-pattern device.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (s *Synthetic) Open(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	s.open = true
	s.tick = 0
	return nil
}

// Read renders the next frame. Bars shift one position per frame.
func (s *Synthetic) Read() (imaging.PixelBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return imaging.PixelBuffer{}, fmt.Errorf("%w: device closed", ErrNoFrameAvailable)
	}

	buf := imaging.New(s.width, s.height)
	n := len(colorBars)
	for x := 0; x < s.width; x++ {
		c := colorBars[(x*n/s.width+s.tick)%n]
		for y := 0; y < s.height; y++ {
			buf.Set(x, y, c[0], c[1], c[2], 255)
		}
	}
	s.tick++
	return buf, nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

// Replay is a Device returning a fixed list of frames in a loop.
type Replay struct {
	mu     sync.Mutex
	frames []imaging.PixelBuffer
	next   int
	open   bool
}

// NewReplay returns a device cycling through frames. Frames are cloned
// on every Read so callers may modify them freely.
func NewReplay(frames ...imaging.PixelBuffer) *Replay {
	return &Replay{frames: frames}
}

func (r *Replay) Open(width, height int) error {
	if len(r.frames) == 0 {
		return fmt.Errorf("replay device has no frames")
	}
	for i, f := range r.frames {
		if f.Width != width || f.Height != height {
			return fmt.Errorf("replay frame %d is %dx%d, requested %dx%d", i, f.Width, f.Height, width, height)
		}
	}
	r.mu.Lock()
	r.open = true
	r.next = 0
	r.mu.Unlock()
	return nil
}

func (r *Replay) Read() (imaging.PixelBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return imaging.PixelBuffer{}, fmt.Errorf("%w: device closed", ErrNoFrameAvailable)
	}
	f := r.frames[r.next%len(r.frames)]
	r.next++
	return f.Clone(), nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	r.open = false
	r.mu.Unlock()
	return nil
}
