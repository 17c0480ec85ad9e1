package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelOff:
		return zerolog.Disabled
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.ErrorLevel
	}
}

// logSink is the file and level shared by a logger and its component children.
type logSink struct {
	mu    sync.Mutex
	level LogLevel
	file  *os.File
	path  string
	zl    zerolog.Logger
}

// Logger writes one JSON object per line to the log file:
//
//	{"level":"debug","pid":4121,"component":"session","time":"...","message":"token refreshed"}
//
// A logger without a file discards everything.
type Logger struct {
	sink      *logSink
	component string
}

// NewLogger opens (appending) the log file at filePath. With level off or an
// empty path nothing is opened and the logger discards all output.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	sink := &logSink{level: level, path: filePath, zl: zerolog.Nop()}
	if level == LogLevelOff || filePath == "" {
		return &Logger{sink: sink}, nil
	}

	filePath = ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	sink.file = f
	sink.path = filePath
	sink.zl = zerolog.New(f).
		Level(level.zerolog()).
		With().
		Int("pid", os.Getpid()).
		Timestamp().
		Logger()
	return &Logger{sink: sink}, nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{sink: &logSink{level: LogLevelOff, zl: zerolog.Nop()}}
}

// With returns a child logger that tags every line with the component name.
// Children share the parent's file, level and Close.
func (l *Logger) With(component string) *Logger {
	return &Logger{sink: l.sink, component: component}
}

// Close closes the log file. Later calls, and logging after Close, are no-ops.
func (l *Logger) Close() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.zl = zerolog.Nop()
	return err
}

// SetLevel changes the log level for the logger and all its children.
func (l *Logger) SetLevel(level LogLevel) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	s.zl = s.zl.Level(level.zerolog())
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// Path returns the resolved log file path.
func (l *Logger) Path() string {
	return l.sink.path
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// Writer returns an io.Writer that logs each write as one line at level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if l.component != "" {
		ev = ev.Str("component", l.component)
	}
	ev.Msgf(format, args...)
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.log(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}
