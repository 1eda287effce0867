// Package logging wraps zerolog with subsystem-scoped child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger tagged with a dotted subsystem path.
type Logger struct {
	zl        zerolog.Logger
	base      zerolog.Logger // zl without the subsystem field
	subsystem string
}

// New creates a root logger writing to w at level. A nil w selects pretty
// console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter("pretty")
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(level))
	return &Logger{zl: zl, base: zl}
}

// Options selects console style and an optional log file for NewWithOptions.
type Options struct {
	Level        string
	ConsoleStyle string // "pretty" | "compact" | "json"
	File         string // JSON lines appended when set
}

// NewWithOptions builds the long-running root logger. The closer releases
// the log file, if one was opened.
func NewWithOptions(opts Options) (*Logger, io.Closer, error) {
	console := consoleWriter(opts.ConsoleStyle)
	if opts.File == "" {
		return New(console, opts.Level), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(zerolog.MultiLevelWriter(console, f), opts.Level), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func consoleWriter(style string) io.Writer {
	switch style {
	case "json":
		return os.Stderr
	case "compact":
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen, NoColor: true}
	default:
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
}

// Sub returns a child logger for subsystem. Nested calls extend the path,
// so Sub("gateway").Sub("clients") logs subsystem=gateway.clients.
func (l *Logger) Sub(subsystem string) *Logger {
	path := subsystem
	if l.subsystem != "" {
		path = l.subsystem + "." + subsystem
	}
	return &Logger{
		zl:        l.base.With().Str("subsystem", path).Logger(),
		base:      l.base,
		subsystem: path,
	}
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str(key, value).Logger(),
		base:      l.base.With().Str(key, value).Logger(),
		subsystem: l.subsystem,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info logs at info level.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn logs at warn level.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error logs at error level.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// ParseLevel maps a config level name to a zerolog level. Names are case
// insensitive; "silent" and "off" disable logging and anything unknown
// means info.
func ParseLevel(s string) zerolog.Level {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "silent", "off":
		return zerolog.Disabled
	case "warning":
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
