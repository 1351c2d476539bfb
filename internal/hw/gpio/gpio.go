package gpio

import (
	"sync"

	"github.com/cjeanneret/photobooth/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	// InputPullUp is an input with the internal pull-up enabled, for
	// buttons wired between the pin and ground (pressed reads LOW).
	InputPullUp
)

// Driver defines the abstract interface for controlling GPIOs.
// The flash LED and the capture button panel are built on it, so the
// booth runs the same code on a Raspberry Pi or on a development PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver keeps pin levels in memory and logs every action.
// Inputs read HIGH until set otherwise, like an idle pulled-up button.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// NewMockDriver returns an empty in-memory driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.Set(pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	level, ok := m.levels[pin]
	m.mu.Unlock()
	if !ok {
		level = High
	}
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

// Set forces the level seen by ReadPin, e.g. to simulate a button press.
func (m *MockDriver) Set(pin int, level Level) {
	m.mu.Lock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	m.mu.Unlock()
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
