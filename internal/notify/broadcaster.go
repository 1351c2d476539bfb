package notify

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Kind classifies an Event.
type Kind string

const (
	KindCountdown Kind = "countdown" // Value = seconds left
	KindShot      Kind = "shot"      // Value = frame index, 0-based
	KindComplete  Kind = "complete"  // Msg = artifact ID
	KindFailed    Kind = "failed"    // Msg = error
	KindGallery   Kind = "gallery"   // Value = gallery size
	KindLog       Kind = "log"
)

// Event is a single status message for subscribers.
type Event struct {
	Time  string `json:"t"`
	Kind  Kind   `json:"k"`
	Level string `json:"l,omitempty"`
	Value int    `json:"v,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

// Broadcaster distributes events to multiple subscribers.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives events as JSON and a cleanup
// function. The caller must call the cleanup when done; calling it more
// than once is harmless.
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Notify sends e to all subscribers, e.g. {"t":"...","k":"countdown","v":3}.
// A missing timestamp is filled in. Slow subscribers may miss events
// (non-blocking, buffered).
func (b *Broadcaster) Notify(e Event) {
	if e.Time == "" {
		e.Time = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Broadcast sends a log line at the given level.
func (b *Broadcaster) Broadcast(level, msg string) {
	b.Notify(Event{Kind: KindLog, Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *Broadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// LogWriter implements io.Writer; each Write broadcasts the trimmed
// content as a log event. Pass it to debug.SetOutput to mirror logs.
func LogWriter(b *Broadcaster) *logWriter {
	return &logWriter{b: b}
}

type logWriter struct {
	b *Broadcaster
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}

// Decode parses a payload received from Subscribe.
func Decode(payload string) (Event, error) {
	var e Event
	err := json.Unmarshal([]byte(payload), &e)
	return e, err
}
