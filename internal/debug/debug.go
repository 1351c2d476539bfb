package debug

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session start, captures, gallery changes)
	LevelLive    = 2 // Live info (countdown ticks, shots taken)
	LevelVerbose = 3 // Verbose (filter timings, sequencer states)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *zap.SugaredLogger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session, captures, gallery)
// 2 = live info (countdown, shots)
// 3 = verbose (filter timings, state changes)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	logger = nil
	if level > LevelOff {
		logger = newLogger(out)
	}
}

// SetOutput redirects debug output to w (e.g. a tee to event subscribers).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	if level > LevelOff {
		logger = newLogger(out)
	}
}

// Output returns the writer debug output currently goes to.
func Output() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return out
}

func newLogger(w io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core).Named("photobooth").Sugar()
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// get returns the logger when the level allows it, nil otherwise.
func get(minLevel int) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return nil
	}
	return logger
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if l := get(LevelInfo); l != nil {
		l.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if l := get(LevelInfo); l != nil {
		l.Info("═══════════════════════════════════════")
		l.Infof("  %s", title)
		l.Info("═══════════════════════════════════════")
	}
}

// Artifact prints a finished capture (level 1).
func Artifact(kind, id, filter string, bytes int) {
	if l := get(LevelInfo); l != nil {
		l.Infow("artifact ready", "kind", kind, "id", id, "filter", filter, "bytes", bytes)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if l := get(LevelLive); l != nil {
		l.Infof("[LIVE] "+format, args...)
	}
}

// Countdown prints a countdown tick (level 2).
func Countdown(remaining int) {
	if l := get(LevelLive); l != nil {
		l.Infof("[LIVE] Countdown: %d", remaining)
	}
}

// Shot prints a frame capture (level 2).
func Shot(index, total int) {
	if l := get(LevelLive); l != nil {
		l.Infof("[LIVE] Frame %d/%d captured", index, total)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if l := get(LevelVerbose); l != nil {
		l.Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if l := get(LevelVerbose); l != nil {
		l.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if l := get(LevelVerbose); l != nil {
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Debugf("  %s", name)
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if l := get(LevelVerbose); l != nil {
		l.Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if l := get(LevelInfo); l != nil {
		l.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if l := get(LevelTrace); l != nil {
		l.Debugf("[TRACE] "+format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if l := get(LevelTrace); l != nil {
		l.Debugf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if l := get(LevelInfo); l != nil {
		l.Errorf("%v", err)
	}
}

// Fmt returns a formatted string only if debug is enabled
// (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
