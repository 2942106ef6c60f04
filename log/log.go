// Package log provides the small structured logger used by the upk
// toolkit. It is modeled on the teacher package's own log helper: a
// minimal Logger interface plus a Helper that formats printf-style
// messages at a handful of severities, and a level Filter so a caller can
// silence everything below a threshold without changing call sites.
package log

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Level is a log severity.
type Level int

// Severities, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String renders the level as its conventional upper-case tag.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink every helper writes through.
type Logger interface {
	Log(level Level, keyvals ...any) error
}

// stdLogger writes one line per call through the standard library logger.
type stdLogger struct {
	mu  sync.Mutex
	log *log.Logger
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{log: log.New(w, "", log.LstdFlags)}
}

func (l *stdLogger) Log(level Level, keyvals ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintln(keyvals...)
	l.log.Printf("[%s] %s", level, msg[:len(msg)-1])
	return nil
}

// filter wraps a Logger and drops entries below a minimum level.
type filter struct {
	logger Logger
	level  Level
}

// FilterOption configures a filtering Logger.
type FilterOption func(*filter)

// FilterLevel sets the minimum level that passes through the filter.
func FilterLevel(level Level) FilterOption {
	return func(f *filter) { f.level = level }
}

// NewFilter returns a Logger that only forwards entries at or above the
// configured level (LevelInfo by default).
func NewFilter(logger Logger, opts ...FilterOption) Logger {
	f := &filter{logger: logger, level: LevelInfo}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, keyvals ...any) error {
	if level < f.level {
		return nil
	}
	return f.logger.Log(level, keyvals...)
}

// Helper adds printf-style convenience methods over a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, format string, a ...any) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, fmt.Sprintf(format, a...))
}

// Debugf logs at LevelDebug.
func (h *Helper) Debugf(format string, a ...any) { h.log(LevelDebug, format, a...) }

// Infof logs at LevelInfo.
func (h *Helper) Infof(format string, a ...any) { h.log(LevelInfo, format, a...) }

// Warnf logs at LevelWarn.
func (h *Helper) Warnf(format string, a ...any) { h.log(LevelWarn, format, a...) }

// Errorf logs at LevelError.
func (h *Helper) Errorf(format string, a ...any) { h.log(LevelError, format, a...) }

// Warn logs a plain message at LevelWarn.
func (h *Helper) Warn(a ...any) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(LevelWarn, a...)
}
