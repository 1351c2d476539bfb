package flash

import (
	"time"

	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/hw/gpio"
)

// DefaultDuration is how long the flash stays lit for one shot.
const DefaultDuration = 200 * time.Millisecond

// LED is a flash driven by one GPIO output:
// - HIGH: lit
// - LOW: dark (idle)
//
// Fire sequence:
// 1. Pin to HIGH
// 2. Hold for the flash duration
// 3. Pin back to LOW
type LED struct {
	gpio     gpio.Driver
	pin      int
	duration time.Duration
	sleep    func(time.Duration)
}

// NewLED configures pin as an output and turns the flash off.
// A non-positive duration falls back to DefaultDuration.
func NewLED(g gpio.Driver, pin int, duration time.Duration) *LED {
	if duration <= 0 {
		duration = DefaultDuration
	}

	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)

	return &LED{
		gpio:     g,
		pin:      pin,
		duration: duration,
		sleep:    time.Sleep,
	}
}

// Fire lights the flash for its duration. The pin is always driven back
// LOW, even when the first write fails halfway.
func (l *LED) Fire() error {
	debug.Verbose("Flash: firing (pin %d, %v)", l.pin, l.duration)

	if err := l.gpio.WritePin(l.pin, gpio.High); err != nil {
		_ = l.gpio.WritePin(l.pin, gpio.Low)
		return err
	}

	l.sleep(l.duration)

	if err := l.gpio.WritePin(l.pin, gpio.Low); err != nil {
		return err
	}

	debug.Trace("Flash: done")
	return nil
}

// Duration returns how long each Fire keeps the LED lit.
func (l *LED) Duration() time.Duration {
	return l.duration
}
