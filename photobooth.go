// Package photobooth runs a camera session: it owns the frame stream,
// the capture sequencer, the optional GPIO flash and button panel, and
// the in-memory gallery of finished photos and strips.
package photobooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/photobooth/internal/artifact"
	"github.com/cjeanneret/photobooth/internal/config"
	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/export"
	"github.com/cjeanneret/photobooth/internal/gallery"
	"github.com/cjeanneret/photobooth/internal/hw/camera"
	"github.com/cjeanneret/photobooth/internal/hw/controls"
	"github.com/cjeanneret/photobooth/internal/hw/flash"
	"github.com/cjeanneret/photobooth/internal/hw/gpio"
	"github.com/cjeanneret/photobooth/internal/logic/capture"
	"github.com/cjeanneret/photobooth/internal/logic/imaging"
	"github.com/cjeanneret/photobooth/internal/notify"
)

// Errors callers are expected to match with errors.Is.
var (
	ErrBusy              = capture.ErrBusy
	ErrFrameUnavailable  = capture.ErrFrameUnavailable
	ErrUnsupportedFilter = imaging.ErrUnsupportedFilter
	ErrEncoding          = export.ErrEncoding
	ErrNotFound          = gallery.ErrNotFound
)

type options struct {
	device camera.Device
	gpio   gpio.Driver
	sleep  func(time.Duration)
}

// Option customizes a Session.
type Option func(*options)

// WithDevice replaces the configured camera device.
func WithDevice(d camera.Device) Option {
	return func(o *options) { o.device = d }
}

// WithGPIO supplies the GPIO driver for the flash and the button panel.
// The session does not close a driver it did not create.
func WithGPIO(d gpio.Driver) Option {
	return func(o *options) { o.gpio = d }
}

// WithSleep replaces time.Sleep for countdown ticks and strip delays.
func WithSleep(fn func(time.Duration)) Option {
	return func(o *options) { o.sleep = fn }
}

// Session is one running booth. The zero value is not usable; call New.
type Session struct {
	cfg     *config.Config
	stream  *camera.Stream
	seq     *capture.Sequencer
	gallery *gallery.Gallery
	blobs   *export.BlobStore
	events  *notify.Broadcaster
	panel   *controls.Panel

	gpio    gpio.Driver
	ownGPIO bool

	logOut io.Writer // debug output before the event tee, nil when not teed

	mu        sync.Mutex
	filter    imaging.Kind
	timer     bool
	started   bool
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// Open loads .env, then the YAML config at path, and builds a Session.
func Open(path string, opts ...Option) (*Session, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(cfg, opts...)
}

// New builds a stopped Session from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	debug.Init(cfg.Defaults.DebugLevel)

	s := &Session{
		cfg:    cfg,
		events: notify.NewBroadcaster(),
		blobs:  export.NewBlobStore(),
		filter: cfg.Filter(),
		timer:  cfg.Capture.TimerEnabled,
	}
	if cfg.Defaults.StreamLogs {
		// Tee onto the current output, not os.Stdout: "run" prints the
		// resulting log events on stdout itself.
		s.logOut = debug.Output()
		debug.SetOutput(io.MultiWriter(s.logOut, notify.LogWriter(s.events)))
	}
	s.gallery = gallery.New(s.blobs, cfg.Export.FilenamePrefix)

	dev := o.device
	if dev == nil {
		dev = camera.NewSynthetic()
	}
	s.stream = camera.NewStream(dev, cfg.Camera.WidthPx, cfg.Camera.HeightPx)

	s.seq = capture.NewSequencer(s.stream, s.events, capture.Config{
		TimerSeconds: cfg.Capture.TimerSeconds,
		ShotDelay:    cfg.ShotDelay(),
		Mirror:       cfg.Camera.Mirror,
		Quality:      cfg.Export.Quality,
		Sleep:        o.sleep,
	})

	if cfg.Flash.Enabled || cfg.Controls.Enabled {
		s.gpio = o.gpio
		if s.gpio == nil {
			drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
			if err != nil {
				return nil, err
			}
			s.gpio = drv
			s.ownGPIO = true
		}
	}
	if cfg.Flash.Enabled {
		s.seq.SetFlash(flash.NewLED(s.gpio, cfg.Flash.Pin, cfg.FlashDuration()))
	}
	if cfg.Controls.Enabled {
		s.panel = controls.NewPanel(s.gpio, controls.Pins{
			Single:   cfg.Controls.SinglePin,
			Strip:    cfg.Controls.StripPin,
			ReadyLED: cfg.Controls.ReadyLEDPin,
		})
		s.seq.SetControls(s.panel)
	}

	debug.PrintStruct("Config", cfg)
	return s, nil
}

// Start opens the camera stream and, when configured, starts watching
// the capture buttons. Starting a started session is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.started = true

	if s.panel != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopWatch = cancel
		s.watchDone = make(chan struct{})
		go func() {
			defer close(s.watchDone)
			_ = s.panel.Watch(ctx, s.cfg.PollInterval(), func(b controls.Button) {
				s.onPress(ctx, b)
			})
		}()
	}

	debug.Summary("Photo booth ready")
	w, h := s.stream.Size()
	debug.Value("Camera", fmt.Sprintf("%dx%d mirror=%v", w, h, s.cfg.Camera.Mirror))
	debug.Value("Filter", s.filter)
	debug.Value("Timer", s.timer)
	s.events.BroadcastMsg("session started")
	return nil
}

// Stop stops the button watcher and releases the camera stream. A
// capture already running finishes with ErrFrameUnavailable at its next
// frame.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel, done := s.stopWatch, s.watchDone
	s.stopWatch, s.watchDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	err := s.stream.Stop()
	s.events.BroadcastMsg("session stopped")
	return err
}

// Close stops the session, empties the gallery, restores the debug
// output and releases the GPIO driver when the session created it.
func (s *Session) Close() error {
	err := s.Stop()
	s.gallery.Clear()
	if s.logOut != nil {
		debug.SetOutput(s.logOut)
		s.logOut = nil
	}
	if s.ownGPIO && s.gpio != nil {
		err = errors.Join(err, s.gpio.Close())
	}
	return err
}

func (s *Session) onPress(ctx context.Context, b controls.Button) {
	var err error
	switch b {
	case controls.ButtonSingle:
		_, err = s.Capture(ctx)
	case controls.ButtonStrip:
		_, err = s.CaptureStrip(ctx)
	}
	if errors.Is(err, ErrBusy) {
		debug.Verbose("Session: %s press ignored, capture running", b)
	}
}

// Running reports whether the camera stream is started.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// SetFilter selects the filter for the next captures.
func (s *Session) SetFilter(k imaging.Kind) error {
	if !k.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFilter, string(k))
	}
	s.mu.Lock()
	s.filter = k
	s.mu.Unlock()
	debug.Info("Filter: %s", k)
	return nil
}

// Filter returns the current filter.
func (s *Session) Filter() imaging.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetTimer turns the countdown before each shot on or off.
func (s *Session) SetTimer(on bool) {
	s.mu.Lock()
	s.timer = on
	s.mu.Unlock()
	debug.Info("Timer: %v", on)
}

// TimerEnabled reports whether captures start with a countdown.
func (s *Session) TimerEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}

// Busy reports whether a capture is running.
func (s *Session) Busy() bool {
	return s.seq.Busy()
}

func (s *Session) request() capture.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return capture.Request{Filter: s.filter, Timer: s.timer}
}

// Capture takes a single photo and adds it to the gallery.
func (s *Session) Capture(ctx context.Context) (*artifact.Artifact, error) {
	a, err := s.seq.Capture(ctx, s.request())
	if err != nil {
		return nil, err
	}
	s.add(a)
	return a, nil
}

// CaptureStrip takes a four-frame strip and adds it to the gallery.
func (s *Session) CaptureStrip(ctx context.Context) (*artifact.Artifact, error) {
	a, err := s.seq.CaptureStrip(ctx, s.request())
	if err != nil {
		return nil, err
	}
	s.add(a)
	return a, nil
}

func (s *Session) add(a *artifact.Artifact) {
	if s.gallery.Add(a) {
		s.events.Notify(notify.Event{Kind: notify.KindGallery, Value: s.gallery.Len(), Msg: "added " + a.ID.String()})
	}
}

// Remove deletes an artifact from the gallery. Unknown IDs are ignored.
func (s *Session) Remove(id uuid.UUID) bool {
	if !s.gallery.Remove(id) {
		return false
	}
	s.events.Notify(notify.Event{Kind: notify.KindGallery, Value: s.gallery.Len(), Msg: "removed " + id.String()})
	return true
}

// ClearGallery deletes every artifact.
func (s *Session) ClearGallery() int {
	n := s.gallery.Clear()
	if n > 0 {
		s.events.Notify(notify.Event{Kind: notify.KindGallery, Value: 0, Msg: "cleared"})
	}
	return n
}

// Gallery exposes the session gallery for listing and downloads.
func (s *Session) Gallery() *gallery.Gallery {
	return s.gallery
}

// Events exposes the event broadcaster; Subscribe to follow countdowns,
// shots, outcomes and gallery changes.
func (s *Session) Events() *notify.Broadcaster {
	return s.events
}

// Config returns the effective configuration.
func (s *Session) Config() *config.Config {
	return s.cfg
}
