package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cjeanneret/photobooth/internal/artifact"
	"github.com/cjeanneret/photobooth/internal/logic/imaging"
	"github.com/cjeanneret/photobooth/internal/notify"
)

// fakeSource returns its frames in a loop, or err when set.
type fakeSource struct {
	mu     sync.Mutex
	frames []imaging.PixelBuffer
	reads  int
	err    error
	failAt int // fail on this read (1-based) when > 0

	notReady error
}

func (f *fakeSource) Ready() error { return f.notReady }

func (f *fakeSource) NextFrame() (imaging.PixelBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil && (f.failAt == 0 || f.reads == f.failAt) {
		return imaging.PixelBuffer{}, f.err
	}
	return f.frames[(f.reads-1)%len(f.frames)].Clone(), nil
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) values(kind notify.Kind) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Value)
		}
	}
	return out
}

// recordingControls records SetEnabled calls.
type recordingControls struct {
	mu    sync.Mutex
	calls []bool
}

func (c *recordingControls) SetEnabled(on bool) {
	c.mu.Lock()
	c.calls = append(c.calls, on)
	c.mu.Unlock()
}

func (c *recordingControls) assertToggled(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) != 2 || c.calls[0] != false || c.calls[1] != true {
		t.Errorf("controls = %v, want [false true]", c.calls)
	}
}

type countingFlash struct {
	fires int
	err   error
}

func (f *countingFlash) Fire() error {
	f.fires++
	return f.err
}

func gradientFrame(w, h int, seed uint8) imaging.PixelBuffer {
	buf := imaging.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.Set(x, y, seed+uint8(x*40), seed+uint8(y*30), uint8(x+y)*20, 200)
		}
	}
	return buf
}

type harness struct {
	seq      *Sequencer
	src      *fakeSource
	events   *recorder
	controls *recordingControls
	slept    []time.Duration
}

func newHarness(cfg Config, frames ...imaging.PixelBuffer) *harness {
	h := &harness{
		src:      &fakeSource{frames: frames},
		events:   &recorder{},
		controls: &recordingControls{},
	}
	h.seq = NewSequencer(h.src, h.events, cfg)
	h.seq.SetControls(h.controls)
	h.seq.sleep = func(d time.Duration) { h.slept = append(h.slept, d) }
	return h
}

// ---------- Single ----------

func TestCapture_Single(t *testing.T) {
	frame := gradientFrame(4, 3, 10)
	h := newHarness(Config{}, frame)

	a, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindSepia})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	want, _ := imaging.Apply(frame, imaging.KindSepia)
	if !a.Pixels.Equal(want) {
		t.Error("artifact pixels differ from filtering the frame directly")
	}
	if a.Kind != artifact.KindSingle || a.Filter != imaging.KindSepia || a.Frames != 1 {
		t.Errorf("artifact = %s", a)
	}
	if len(a.Encoded) == 0 {
		t.Error("artifact should carry encoded bytes")
	}
	if len(h.slept) != 0 {
		t.Errorf("slept %v without a timer", h.slept)
	}
	h.controls.assertToggled(t)
	if got := h.events.kinds(); len(got) != 2 || got[0] != notify.KindShot || got[1] != notify.KindComplete {
		t.Errorf("events = %v, want [shot complete]", got)
	}
	if h.seq.State() != StateIdle {
		t.Errorf("state = %s, want idle", h.seq.State())
	}
}

func TestCapture_CountdownTicks(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))

	if _, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindNone, Timer: true}); err != nil {
		t.Fatal(err)
	}

	ticks := h.events.values(notify.KindCountdown)
	if len(ticks) != 3 || ticks[0] != 3 || ticks[1] != 2 || ticks[2] != 1 {
		t.Errorf("countdown = %v, want [3 2 1]", ticks)
	}
	if len(h.slept) != 3 {
		t.Fatalf("slept %d times, want 3", len(h.slept))
	}
	for _, d := range h.slept {
		if d != time.Second {
			t.Errorf("tick = %v, want 1s", d)
		}
	}
}

func TestCapture_Mirror(t *testing.T) {
	frame := gradientFrame(5, 2, 0)
	h := newHarness(Config{Mirror: true}, frame)

	a, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindGrayscale})
	if err != nil {
		t.Fatal(err)
	}
	mirrored, _ := imaging.Mirror(frame)
	want, _ := imaging.Apply(mirrored, imaging.KindGrayscale)
	if !a.Pixels.Equal(want) {
		t.Error("mirror should run before the filter")
	}
}

func TestCapture_FiresFlash(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	fl := &countingFlash{err: errors.New("led unplugged")}
	h.seq.SetFlash(fl)

	if _, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindNone}); err != nil {
		t.Fatalf("flash failure should not fail the capture: %v", err)
	}
	if fl.fires != 1 {
		t.Errorf("fires = %d, want 1", fl.fires)
	}
}

// ---------- Failures ----------

func TestCapture_FrameUnavailableRestoresControls(t *testing.T) {
	errNoCamera := errors.New("no active stream")
	h := newHarness(Config{})
	h.src.err = errNoCamera

	a, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindSepia})
	if a != nil {
		t.Error("no artifact expected on failure")
	}
	if !errors.Is(err, ErrFrameUnavailable) || !errors.Is(err, errNoCamera) {
		t.Errorf("error = %v, want ErrFrameUnavailable wrapping the source error", err)
	}
	h.controls.assertToggled(t)
	if h.seq.Busy() {
		t.Error("sequencer should be idle after a failure")
	}
	kinds := h.events.kinds()
	if len(kinds) != 1 || kinds[0] != notify.KindFailed {
		t.Errorf("events = %v, want [failed]", kinds)
	}
}

func TestCapture_SourceNotReadyFailsBeforeCountdown(t *testing.T) {
	errStopped := errors.New("stream not started")
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	h.src.notReady = errStopped
	fl := &countingFlash{}
	h.seq.SetFlash(fl)

	a, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindNone, Timer: true})
	if a != nil || !errors.Is(err, ErrFrameUnavailable) || !errors.Is(err, errStopped) {
		t.Errorf("Capture = %v, %v; want nil, ErrFrameUnavailable wrapping the source error", a, err)
	}
	if ticks := h.events.values(notify.KindCountdown); len(ticks) != 0 {
		t.Errorf("countdown = %v, want none", ticks)
	}
	if len(h.slept) != 0 || fl.fires != 0 || h.src.reads != 0 {
		t.Errorf("slept=%d fires=%d reads=%d, want 0/0/0", len(h.slept), fl.fires, h.src.reads)
	}
	if kinds := h.events.kinds(); len(kinds) != 1 || kinds[0] != notify.KindFailed {
		t.Errorf("events = %v, want [failed]", kinds)
	}
	h.controls.assertToggled(t)
}

func TestCaptureStrip_SourceNotReadyFailsBeforeCountdown(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	h.src.notReady = errors.New("stream not started")
	fl := &countingFlash{}
	h.seq.SetFlash(fl)

	_, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone, Timer: true})
	if !errors.Is(err, ErrFrameUnavailable) {
		t.Errorf("error = %v, want ErrFrameUnavailable", err)
	}
	if len(h.slept) != 0 || fl.fires != 0 || h.src.reads != 0 {
		t.Errorf("slept=%d fires=%d reads=%d, want 0/0/0", len(h.slept), fl.fires, h.src.reads)
	}
	if h.seq.Busy() {
		t.Error("sequencer should be idle")
	}
}

func TestCapture_UnsupportedFilter(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))

	_, err := h.seq.Capture(context.Background(), Request{Filter: imaging.Kind("neon")})
	if !errors.Is(err, imaging.ErrUnsupportedFilter) {
		t.Errorf("error = %v, want ErrUnsupportedFilter", err)
	}
	if h.src.reads != 0 {
		t.Errorf("source read %d times, want 0", h.src.reads)
	}
	h.controls.assertToggled(t)
}

func TestCapture_CancelledBeforeStart(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.seq.Capture(ctx, Request{Filter: imaging.KindNone})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	h.controls.assertToggled(t)
}

func TestCapture_CancelledDuringCountdown(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	ctx, cancel := context.WithCancel(context.Background())
	h.seq.sleep = func(time.Duration) { cancel() }

	_, err := h.seq.Capture(ctx, Request{Filter: imaging.KindNone, Timer: true})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if ticks := h.events.values(notify.KindCountdown); len(ticks) != 1 || ticks[0] != 3 {
		t.Errorf("countdown = %v, want [3]", ticks)
	}
	if h.src.reads != 0 {
		t.Error("no frame should be taken after cancellation")
	}
}

// ---------- Mutual exclusion ----------

// blockingSource parks NextFrame until released.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	frame   imaging.PixelBuffer
}

func (b *blockingSource) Ready() error { return nil }

func (b *blockingSource) NextFrame() (imaging.PixelBuffer, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.frame.Clone(), nil
}

func TestCapture_SecondRequestRejectedWhileBusy(t *testing.T) {
	src := &blockingSource{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		frame:   gradientFrame(2, 2, 0),
	}
	controls := &recordingControls{}
	seq := NewSequencer(src, nil, Config{})
	seq.SetControls(controls)

	type result struct {
		a   *artifact.Artifact
		err error
	}
	done := make(chan result, 1)
	go func() {
		a, err := seq.Capture(context.Background(), Request{Filter: imaging.KindNone})
		done <- result{a, err}
	}()

	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("first capture never reached the frame source")
	}

	if _, err := seq.Capture(context.Background(), Request{Filter: imaging.KindNone}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Capture: %v, want ErrBusy", err)
	}
	if _, err := seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone}); !errors.Is(err, ErrBusy) {
		t.Errorf("CaptureStrip while busy: %v, want ErrBusy", err)
	}

	close(src.release)
	select {
	case r := <-done:
		if r.err != nil || r.a == nil {
			t.Errorf("first capture = %v, %v; want success", r.a, r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("first capture did not finish")
	}
	controls.assertToggled(t)
}

func TestCaptureStrip_RejectsTriggersForWholeStrip(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	var attempts, rejected int
	var states []State
	h.seq.sleep = func(d time.Duration) {
		h.slept = append(h.slept, d)
		states = append(states, h.seq.State())
		attempts += 2
		if _, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindNone}); errors.Is(err, ErrBusy) {
			rejected++
		}
		if _, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone}); errors.Is(err, ErrBusy) {
			rejected++
		}
	}

	a, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone, Timer: true})
	if err != nil {
		t.Fatalf("CaptureStrip: %v", err)
	}
	// 12 countdown ticks plus 3 inter-shot delays, two attempts each.
	if attempts != 30 || rejected != attempts {
		t.Errorf("rejected %d of %d attempts, want all 30", rejected, attempts)
	}
	for i, st := range states {
		if st == StateIdle {
			t.Errorf("wait %d ran in idle state", i)
		}
	}
	if a.Frames != 4 || a.Pixels.Height != 4*2 {
		t.Errorf("artifact = %s, want 4 frames", a)
	}
	if h.src.reads != 4 {
		t.Errorf("reads = %d, want 4", h.src.reads)
	}
	h.controls.assertToggled(t)
	if kinds := h.events.kinds(); kinds[len(kinds)-1] != notify.KindComplete {
		t.Errorf("last event = %s, want complete", kinds[len(kinds)-1])
	}
}

// ---------- Strip ----------

func TestCaptureStrip_LayoutMatchesIndependentFilters(t *testing.T) {
	frames := []imaging.PixelBuffer{
		gradientFrame(3, 2, 0),
		gradientFrame(3, 2, 50),
		gradientFrame(3, 2, 100),
		gradientFrame(3, 2, 150),
	}
	h := newHarness(Config{}, frames...)

	a, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindVintage})
	if err != nil {
		t.Fatalf("CaptureStrip: %v", err)
	}
	if a.Kind != artifact.KindStrip || a.Frames != 4 {
		t.Errorf("artifact = %s", a)
	}
	if a.Pixels.Width != 3 || a.Pixels.Height != 4*2 {
		t.Fatalf("strip = %dx%d, want 3x8", a.Pixels.Width, a.Pixels.Height)
	}

	for i, f := range frames {
		want, _ := imaging.Apply(f, imaging.KindVintage)
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				r, g, b, al := a.Pixels.At(x, i*2+y)
				wr, wg, wb, wa := want.At(x, y)
				if r != wr || g != wg || b != wb || al != wa {
					t.Fatalf("frame %d pixel (%d,%d) differs", i, x, y)
				}
			}
		}
	}
}

func TestCaptureStrip_DelaysAndEvents(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))

	if _, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone}); err != nil {
		t.Fatal(err)
	}

	if len(h.slept) != 3 {
		t.Fatalf("slept %v, want 3 inter-shot delays", h.slept)
	}
	for _, d := range h.slept {
		if d != 1000*time.Millisecond {
			t.Errorf("delay = %v, want 1000ms", d)
		}
	}
	shots := h.events.values(notify.KindShot)
	if len(shots) != 4 || shots[0] != 0 || shots[3] != 3 {
		t.Errorf("shots = %v, want [0 1 2 3]", shots)
	}
	h.controls.assertToggled(t)
}

func TestCaptureStrip_WithTimer(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))

	if _, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone, Timer: true}); err != nil {
		t.Fatal(err)
	}
	if ticks := h.events.values(notify.KindCountdown); len(ticks) != 12 {
		t.Errorf("countdown ticks = %d, want 12", len(ticks))
	}
	// 4 countdowns of 3 ticks, plus 3 inter-shot delays.
	if len(h.slept) != 15 {
		t.Errorf("sleeps = %d, want 15", len(h.slept))
	}
}

func TestCaptureStrip_FailureMidway(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	h.src.err = errors.New("stream ended")
	h.src.failAt = 3

	a, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone})
	if a != nil || !errors.Is(err, ErrFrameUnavailable) {
		t.Errorf("CaptureStrip = %v, %v; want nil, ErrFrameUnavailable", a, err)
	}
	h.controls.assertToggled(t)
	if h.seq.State() != StateIdle {
		t.Errorf("state = %s, want idle", h.seq.State())
	}

	// The sequencer accepts a new capture right away.
	h.src.err = nil
	if _, err := h.seq.Capture(context.Background(), Request{Filter: imaging.KindNone}); err != nil {
		t.Errorf("capture after failure: %v", err)
	}
}

func TestCaptureStrip_CancelledBetweenFrames(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	ctx, cancel := context.WithCancel(context.Background())
	h.seq.sleep = func(time.Duration) { cancel() }

	_, err := h.seq.CaptureStrip(ctx, Request{Filter: imaging.KindNone})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	// The first delay runs to completion, the second frame is never taken.
	if h.src.reads != 1 {
		t.Errorf("reads = %d, want 1", h.src.reads)
	}
}

func TestCaptureStrip_FlashPerFrame(t *testing.T) {
	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	fl := &countingFlash{}
	h.seq.SetFlash(fl)

	if _, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone}); err != nil {
		t.Fatal(err)
	}
	if fl.fires != 4 {
		t.Errorf("fires = %d, want 4", fl.fires)
	}
}

// ---------- Tracing ----------

func TestCaptureStrip_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h := newHarness(Config{}, gradientFrame(2, 2, 0))
	h.seq.tracer = tp.Tracer("test")

	if _, err := h.seq.CaptureStrip(context.Background(), Request{Filter: imaging.KindNone}); err != nil {
		t.Fatal(err)
	}

	counts := map[string]int{}
	for _, s := range rec.Ended() {
		counts[s.Name()]++
	}
	want := map[string]int{
		"capture.strip":   1,
		"capture.frame":   4,
		"capture.compose": 1,
		"capture.encode":  1,
	}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("spans %q = %d, want %d", name, counts[name], n)
		}
	}
}

// ---------- Config ----------

func TestConfig_Defaults(t *testing.T) {
	cfg := NewSequencer(&fakeSource{}, nil, Config{}).Config()
	if cfg.TimerSeconds != 3 || cfg.TickInterval != time.Second || cfg.ShotDelay != time.Second {
		t.Errorf("timings = %+v", cfg)
	}
	if cfg.StripFrames != 4 || cfg.Quality != 90 {
		t.Errorf("output = %+v", cfg)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:      "idle",
		StateCountdown: "countdown",
		StateCapturing: "capturing",
		StateComposing: "composing",
	}
	for st, want := range cases {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
