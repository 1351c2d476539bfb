package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cjeanneret/photobooth/internal/artifact"
	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/export"
	"github.com/cjeanneret/photobooth/internal/logic/geometry"
	"github.com/cjeanneret/photobooth/internal/logic/imaging"
	"github.com/cjeanneret/photobooth/internal/metrics"
	"github.com/cjeanneret/photobooth/internal/notify"
)

var (
	// ErrBusy is returned when a capture is requested while another runs.
	ErrBusy = errors.New("capture already in progress")
	// ErrFrameUnavailable is returned when the frame source yields nothing.
	ErrFrameUnavailable = errors.New("frame unavailable")
)

// State is the sequencer's position in a capture.
type State int

const (
	StateIdle State = iota
	StateCountdown
	StateCapturing
	StateComposing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountdown:
		return "countdown"
	case StateCapturing:
		return "capturing"
	case StateComposing:
		return "composing"
	}
	return "unknown"
}

// FrameSource yields raw frames on demand. Ready reports, without
// reading a frame, why the source cannot deliver one (nil when it can).
type FrameSource interface {
	Ready() error
	NextFrame() (imaging.PixelBuffer, error)
}

// Notifier receives countdown ticks, shots and outcomes.
type Notifier interface {
	Notify(notify.Event)
}

// Controls are the capture triggers, disabled while a capture runs.
type Controls interface {
	SetEnabled(on bool)
}

// Flasher lights the subject right before a frame is taken.
type Flasher interface {
	Fire() error
}

// Config tunes timings and output. Zero values take the defaults.
type Config struct {
	TimerSeconds int           // countdown ticks, default 3
	TickInterval time.Duration // time per tick, default 1s
	ShotDelay    time.Duration // pause between strip frames, default 1s
	StripFrames  int           // frames per strip, default 4
	Mirror       bool          // flip frames horizontally
	Quality      int           // JPEG quality, default 90

	// Sleep performs every wait; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (c Config) withDefaults() Config {
	if c.TimerSeconds <= 0 {
		c.TimerSeconds = 3
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ShotDelay <= 0 {
		c.ShotDelay = time.Second
	}
	if c.StripFrames <= 0 {
		c.StripFrames = geometry.StripFrames
	}
	if c.Quality == 0 {
		c.Quality = export.DefaultQuality
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	return c
}

// Request describes one capture.
type Request struct {
	Filter imaging.Kind
	Timer  bool
}

// Sequencer runs single and strip captures one at a time. Captures run
// on the caller's goroutine; a second request while one is in progress
// gets ErrBusy and does not disturb the running capture.
type Sequencer struct {
	source   FrameSource
	notifier Notifier
	controls Controls
	flash    Flasher
	cfg      Config
	sleep    func(time.Duration)
	tracer   trace.Tracer

	mu    sync.Mutex
	state State
}

type nopNotifier struct{}

func (nopNotifier) Notify(notify.Event) {}

// NewSequencer creates an idle sequencer. n may be nil.
func NewSequencer(src FrameSource, n Notifier, cfg Config) *Sequencer {
	if n == nil {
		n = nopNotifier{}
	}
	cfg = cfg.withDefaults()
	return &Sequencer{
		source:   src,
		notifier: n,
		cfg:      cfg,
		sleep:    cfg.Sleep,
		tracer:   otel.Tracer("github.com/cjeanneret/photobooth/capture"),
	}
}

// SetControls attaches the capture triggers to disable during captures.
func (s *Sequencer) SetControls(c Controls) { s.controls = c }

// SetFlash attaches a flash fired before every frame.
func (s *Sequencer) SetFlash(f Flasher) { s.flash = f }

// Config returns the effective configuration.
func (s *Sequencer) Config() Config { return s.cfg }

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a capture is running.
func (s *Sequencer) Busy() bool {
	return s.State() != StateIdle
}

func (s *Sequencer) begin(first State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		metrics.BusyRejectionsTotal.Inc()
		return ErrBusy
	}
	s.state = first
	return nil
}

func (s *Sequencer) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		debug.Verbose("Sequencer: %s -> %s", prev, st)
	}
}

func (s *Sequencer) setControls(on bool) {
	if s.controls != nil {
		s.controls.SetEnabled(on)
	}
}

// finish returns to Idle, re-enables the controls and reports the outcome.
// It runs on every return path once begin succeeded.
func (s *Sequencer) finish(kind artifact.Kind, start time.Time, span trace.Span, a *artifact.Artifact, err error) {
	s.setState(StateIdle)
	s.setControls(true)

	metrics.CaptureDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CapturesTotal.WithLabelValues(string(kind), "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		debug.Error(fmt.Errorf("%s capture: %w", kind, err))
		s.notifier.Notify(notify.Event{Kind: notify.KindFailed, Level: "error", Msg: err.Error()})
		return
	}

	metrics.CapturesTotal.WithLabelValues(string(kind), "completed").Inc()
	span.SetAttributes(attribute.String("artifact.id", a.ID.String()))
	debug.Artifact(string(kind), a.ID.String(), string(a.Filter), len(a.Encoded))
	s.notifier.Notify(notify.Event{Kind: notify.KindComplete, Msg: a.ID.String()})
}

// Capture takes one photo: optional countdown, flash, frame, mirror,
// filter, JPEG.
func (s *Sequencer) Capture(ctx context.Context, req Request) (a *artifact.Artifact, err error) {
	if err := s.begin(StateCapturing); err != nil {
		return nil, err
	}
	start := time.Now()
	s.setControls(false)

	ctx, span := s.tracer.Start(ctx, "capture.single", trace.WithAttributes(
		attribute.String("filter", string(req.Filter)),
		attribute.Bool("timer", req.Timer),
	))
	defer span.End()
	defer func() { s.finish(artifact.KindSingle, start, span, a, err) }()

	if !req.Filter.Valid() {
		return nil, fmt.Errorf("%w: %q", imaging.ErrUnsupportedFilter, string(req.Filter))
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	debug.Section("Single capture")
	if req.Timer {
		if err := s.countdown(ctx); err != nil {
			return nil, err
		}
	}

	frame, err := s.shoot(ctx, 0, 1, req.Filter)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, artifact.KindSingle, req.Filter, 1, frame)
}

// CaptureStrip takes StripFrames photos with ShotDelay between them and
// stacks them top to bottom in capture order.
func (s *Sequencer) CaptureStrip(ctx context.Context, req Request) (a *artifact.Artifact, err error) {
	if err := s.begin(StateCapturing); err != nil {
		return nil, err
	}
	start := time.Now()
	s.setControls(false)

	n := s.cfg.StripFrames
	ctx, span := s.tracer.Start(ctx, "capture.strip", trace.WithAttributes(
		attribute.String("filter", string(req.Filter)),
		attribute.Bool("timer", req.Timer),
		attribute.Int("frames", n),
	))
	defer span.End()
	defer func() { s.finish(artifact.KindStrip, start, span, a, err) }()

	if !req.Filter.Valid() {
		return nil, fmt.Errorf("%w: %q", imaging.ErrUnsupportedFilter, string(req.Filter))
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	debug.Section("Strip capture")
	frames := make([]imaging.PixelBuffer, 0, n)
	for i := 0; i < n; i++ {
		debug.Step(i+1, debug.Fmt("strip frame %d/%d", i+1, n))
		if req.Timer {
			if err := s.countdown(ctx); err != nil {
				return nil, err
			}
		}

		frame, err := s.shoot(ctx, i, n, req.Filter)
		if err != nil {
			return nil, fmt.Errorf("strip frame %d: %w", i, err)
		}
		frames = append(frames, frame)

		if i < n-1 {
			// Pose reset. Not interruptible; ctx is checked at the next state.
			debug.Verbose("Sequencer: waiting %v before frame %d", s.cfg.ShotDelay, i+1)
			s.sleep(s.cfg.ShotDelay)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.setState(StateComposing)
	debug.Live("Composing %d frames", len(frames))
	_, compose := s.tracer.Start(ctx, "capture.compose")
	strip, err := imaging.StackVertical(frames)
	compose.End()
	if err != nil {
		return nil, err
	}
	return s.build(ctx, artifact.KindStrip, req.Filter, n, strip)
}

// ready fails fast, before any countdown or flash, when the source
// has nothing to give.
func (s *Sequencer) ready() error {
	if err := s.source.Ready(); err != nil {
		return fmt.Errorf("%w: %w", ErrFrameUnavailable, err)
	}
	return nil
}

// countdown emits TimerSeconds..1, one tick per TickInterval. ctx is
// checked before every tick.
func (s *Sequencer) countdown(ctx context.Context) error {
	s.setState(StateCountdown)
	for remaining := s.cfg.TimerSeconds; remaining > 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		debug.Countdown(remaining)
		s.notifier.Notify(notify.Event{Kind: notify.KindCountdown, Value: remaining})
		s.sleep(s.cfg.TickInterval)
	}
	return nil
}

// shoot acquires and filters frame index of total.
func (s *Sequencer) shoot(ctx context.Context, index, total int, filter imaging.Kind) (imaging.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return imaging.PixelBuffer{}, err
	}
	s.setState(StateCapturing)

	_, span := s.tracer.Start(ctx, "capture.frame", trace.WithAttributes(attribute.Int("index", index)))
	defer span.End()

	if s.flash != nil {
		if err := s.flash.Fire(); err != nil {
			// A dark shot beats no shot.
			debug.Error(fmt.Errorf("flash: %w", err))
		}
	}

	frame, err := s.source.NextFrame()
	if err != nil {
		return imaging.PixelBuffer{}, fmt.Errorf("%w: %w", ErrFrameUnavailable, err)
	}

	if s.cfg.Mirror {
		if frame, err = imaging.Mirror(frame); err != nil {
			return imaging.PixelBuffer{}, fmt.Errorf("%w: %w", ErrFrameUnavailable, err)
		}
	}

	t0 := time.Now()
	out, err := imaging.Apply(frame, filter)
	if err != nil {
		return imaging.PixelBuffer{}, err
	}
	metrics.FilterDuration.WithLabelValues(string(filter)).Observe(time.Since(t0).Seconds())

	debug.Shot(index+1, total)
	s.notifier.Notify(notify.Event{Kind: notify.KindShot, Value: index})
	return out, nil
}

func (s *Sequencer) build(ctx context.Context, kind artifact.Kind, filter imaging.Kind, frames int, px imaging.PixelBuffer) (*artifact.Artifact, error) {
	_, span := s.tracer.Start(ctx, "capture.encode")
	defer span.End()

	data, err := export.EncodeJPEG(px, s.cfg.Quality)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("bytes", len(data)))
	return artifact.New(kind, filter, frames, px, data)
}
