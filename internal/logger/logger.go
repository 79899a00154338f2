package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// Environment variable names for log configuration.
const (
	envLogLevel  = "JAMREC_LOG_LEVEL"
	envLogFormat = "JAMREC_LOG_FORMAT"
)

var (
	// atomicLevel implements slog.Leveler and can be changed at runtime.
	atomicLevel = &dynamicLevel{v: int64(slog.LevelInfo)}
	// global logger instance
	global   *slog.Logger
	globalMu sync.RWMutex
	initOnce sync.Once
)

// dynamicLevel is an atomic Leveler.
type dynamicLevel struct{ v int64 }

func (d *dynamicLevel) Level() slog.Level { return slog.Level(atomic.LoadInt64(&d.v)) }
func (d *dynamicLevel) set(l slog.Level)  { atomic.StoreInt64(&d.v, int64(l)) }

// Init initializes the global logger. It is safe to call multiple times; the
// first call wins except SetLevel / SetFormat / UseWriter which mutate state
// intentionally.
func Init() {
	initOnce.Do(func() {
		lvl := slog.LevelInfo
		if env := os.Getenv(envLogLevel); env != "" {
			if l, ok := parseLevel(env); ok {
				lvl = l
			}
		}
		atomicLevel.set(lvl)
		format := os.Getenv(envLogFormat)
		if format == "" && isatty.IsTerminal(os.Stdout.Fd()) {
			format = "text"
		}
		global = slog.New(newHandler(os.Stdout, format))
	})
}

// newHandler builds a JSON handler unless format is "text".
func newHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: atomicLevel}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts string to slog.Level.
func parseLevel(s string) (slog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errors.New("invalid log level: " + level)
	}
	atomicLevel.set(lvl)
	return nil
}

// SetFormat switches between "json" and "text" output on stdout.
func SetFormat(format string) error {
	Init()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "text":
	default:
		return errors.New("invalid log format: " + format)
	}
	globalMu.Lock()
	global = slog.New(newHandler(os.Stdout, format))
	globalMu.Unlock()
	return nil
}

// Level returns the current runtime level as string.
func Level() string {
	Init()
	return atomicLevel.Level().String()
}

// UseWriter swaps the output writer (intended for tests). Retains current level
// and always emits JSON so tests can decode records.
func UseWriter(w io.Writer) {
	Init()
	globalMu.Lock()
	global = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: atomicLevel}))
	globalMu.Unlock()
}

// Logger returns the global logger (ensures Init was called).
func Logger() *slog.Logger {
	Init()
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// Convenience top-level logging functions.
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// WithChannel attaches the server channel id.
func WithChannel(l *slog.Logger, channelID int) *slog.Logger {
	return l.With("channel_id", channelID)
}

// WithSession attaches the session directory.
func WithSession(l *slog.Logger, sessionDir string) *slog.Logger {
	return l.With("session_dir", sessionDir)
}

// WithClient attaches client identity fields.
func WithClient(l *slog.Logger, name, addr string) *slog.Logger {
	return l.With("client_name", name, "client_addr", addr)
}
