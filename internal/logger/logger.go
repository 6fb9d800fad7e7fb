package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger handles leveled logging with optional file output
type Logger struct {
	Verbose bool
	zl      zerolog.Logger
	sink    *sink
}

// sink is shared between a logger and the children derived with With.
type sink struct {
	mu      sync.Mutex
	console io.Writer
	fileLog *os.File
	json    bool
}

// New creates a Logger that writes human-readable lines to stdout.
func New(verbose bool) *Logger {
	return NewWriter(os.Stdout, verbose)
}

// NewWriter creates a Logger that writes human-readable lines to w.
func NewWriter(w io.Writer, verbose bool) *Logger {
	return newLogger(verbose, &sink{console: zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
	}})
}

// NewJSON creates a Logger that writes one JSON object per line to w.
func NewJSON(w io.Writer, verbose bool) *Logger {
	return newLogger(verbose, &sink{console: w, json: true})
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: &sink{console: io.Discard}}
}

func newLogger(verbose bool, s *sink) *Logger {
	l := &Logger{Verbose: verbose, sink: s}
	l.zl = l.build()
	return l
}

func (l *Logger) build() zerolog.Logger {
	level := zerolog.InfoLevel
	if l.Verbose {
		level = zerolog.DebugLevel
	}

	var w io.Writer = zerolog.LevelWriterAdapter{Writer: l.sink.console}
	if l.sink.fileLog != nil {
		// The file always receives debug lines, the console only what the
		// verbosity allows.
		w = zerolog.MultiLevelWriter(
			levelFilter{w: l.sink.console, min: level},
			l.sink.fileLog,
		)
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.sink.fileLog = f
	l.zl = l.build()
	return nil
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.fileLog != nil {
		err := l.sink.fileLog.Close()
		l.sink.fileLog = nil
		return err
	}
	return nil
}

// With returns a child logger that adds key=value to every line.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{
		Verbose: l.Verbose,
		zl:      l.zl.With().Interface(key, value).Logger(),
		sink:    l.sink,
	}
}

// Zerolog exposes the underlying logger for libraries that want one.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

// Debug logs detailed messages, shown on the console only in verbose mode
func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
