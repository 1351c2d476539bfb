package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/logic/imaging"
	"github.com/cjeanneret/photobooth/internal/metrics"
)

// ErrNoFrameAvailable is returned when no frame can be read, either
// because the stream is stopped or because the device failed.
var ErrNoFrameAvailable = errors.New("no frame available")

// Requested resolution when the configuration leaves it unset.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Device is a raw frame producer. It is abstract so the booth does not
// care whether frames come from a webcam, a capture card or a test pattern.
type Device interface {
	// Open prepares the device for frames of the requested size.
	Open(width, height int) error
	// Read returns the current frame. The buffer belongs to the caller.
	Read() (imaging.PixelBuffer, error)
	Close() error
}

// Stream owns a Device between Start and Stop and hands out frames to
// the capture sequencer.
type Stream struct {
	mu      sync.Mutex
	dev     Device
	width   int
	height  int
	running bool
}

// NewStream wraps dev. Non-positive sizes fall back to 640x480.
func NewStream(dev Device, width, height int) *Stream {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Stream{dev: dev, width: width, height: height}
}

// Start opens the device. Calling Start on a running stream is a no-op.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.dev.Open(s.width, s.height); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	s.running = true
	debug.Info("Camera: stream started (%dx%d)", s.width, s.height)
	return nil
}

// Stop releases the device. Calling Stop on a stopped stream is a no-op.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	debug.Info("Camera: stream stopped")
	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("close camera: %w", err)
	}
	return nil
}

// Running reports whether the stream is started.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Ready returns ErrNoFrameAvailable while the stream is stopped.
func (s *Stream) Ready() error {
	if !s.Running() {
		return fmt.Errorf("%w: stream not started", ErrNoFrameAvailable)
	}
	return nil
}

// Size returns the requested frame size.
func (s *Stream) Size() (width, height int) {
	return s.width, s.height
}

// NextFrame reads one frame from the device.
func (s *Stream) NextFrame() (imaging.PixelBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return imaging.PixelBuffer{}, fmt.Errorf("%w: stream not started", ErrNoFrameAvailable)
	}

	buf, err := s.dev.Read()
	if err != nil {
		if errors.Is(err, ErrNoFrameAvailable) {
			return imaging.PixelBuffer{}, err
		}
		return imaging.PixelBuffer{}, fmt.Errorf("%w: %v", ErrNoFrameAvailable, err)
	}
	if err := buf.Validate(); err != nil {
		return imaging.PixelBuffer{}, fmt.Errorf("%w: %v", ErrNoFrameAvailable, err)
	}

	metrics.FramesAcquiredTotal.Inc()
	debug.Trace("Camera: frame %dx%d", buf.Width, buf.Height)
	return buf, nil
}
