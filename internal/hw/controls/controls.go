package controls

import (
	"context"
	"sync"
	"time"

	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/hw/gpio"
)

// Button identifies a capture button on the panel.
type Button int

const (
	ButtonSingle Button = iota
	ButtonStrip
)

func (b Button) String() string {
	switch b {
	case ButtonSingle:
		return "single"
	case ButtonStrip:
		return "strip"
	}
	return "unknown"
}

// DefaultPollInterval is the button sampling period used by Watch.
const DefaultPollInterval = 20 * time.Millisecond

// Pins maps the panel to GPIO numbers. Buttons are wired active LOW
// (pin to ground, internal pull-up). ReadyLED is lit while captures
// are accepted; a negative pin disables it.
type Pins struct {
	Single   int
	Strip    int
	ReadyLED int
}

// Panel is the physical capture control surface: two buttons and a
// "ready" LED. The sequencer disables it while a capture runs.
type Panel struct {
	gpio gpio.Driver
	pins Pins

	mu      sync.Mutex
	enabled bool
}

// NewPanel configures the pins and starts enabled.
func NewPanel(g gpio.Driver, pins Pins) *Panel {
	_ = g.SetupPin(pins.Single, gpio.InputPullUp)
	_ = g.SetupPin(pins.Strip, gpio.InputPullUp)
	if pins.ReadyLED >= 0 {
		_ = g.SetupPin(pins.ReadyLED, gpio.Output)
	}

	p := &Panel{gpio: g, pins: pins}
	p.SetEnabled(true)
	return p
}

// SetEnabled turns capture input on or off and mirrors it on the LED.
func (p *Panel) SetEnabled(on bool) {
	p.mu.Lock()
	p.enabled = on
	p.mu.Unlock()

	debug.Verbose("Controls: enabled=%v", on)
	if p.pins.ReadyLED >= 0 {
		_ = p.gpio.WritePin(p.pins.ReadyLED, gpio.Level(on))
	}
}

// Enabled reports whether presses are currently accepted.
func (p *Panel) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *Panel) pinOf(b Button) int {
	if b == ButtonStrip {
		return p.pins.Strip
	}
	return p.pins.Single
}

// scan samples every button once and returns those that went from
// released (HIGH) to pressed (LOW) since prev. prev is updated in place.
// Presses are dropped while the panel is disabled.
func (p *Panel) scan(prev map[Button]gpio.Level) ([]Button, error) {
	var pressed []Button
	for _, b := range []Button{ButtonSingle, ButtonStrip} {
		level, err := p.gpio.ReadPin(p.pinOf(b))
		if err != nil {
			return nil, err
		}
		last, seen := prev[b]
		prev[b] = level
		if !seen || last != gpio.High || level != gpio.Low {
			continue
		}
		if !p.Enabled() {
			debug.Verbose("Controls: %s press ignored (busy)", b)
			continue
		}
		pressed = append(pressed, b)
	}
	return pressed, nil
}

// Watch polls the buttons every interval and calls onPress for each new
// press, on the Watch goroutine. It returns when ctx is done.
func (p *Panel) Watch(ctx context.Context, interval time.Duration, onPress func(Button)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := make(map[Button]gpio.Level, 2)
	// The first sample only seeds prev so a held button does not fire.
	if _, err := p.scan(prev); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pressed, err := p.scan(prev)
		if err != nil {
			debug.Error(err)
			continue
		}
		for _, b := range pressed {
			debug.Info("Controls: %s button pressed", b)
			onPress(b)
		}
	}
}
