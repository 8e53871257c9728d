// Package logging sets up the zerolog logger shared by every component.
//
// In debug mode JSON lines go to <data_dir>/debug.log at debug level.
// Otherwise only warnings and errors are printed, to stderr, through a
// zerolog.ConsoleWriter.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	// Debug enables the debug log file.
	Debug bool
	// Dir is where debug.log is written.
	Dir string
	// Console receives human-readable warnings. Defaults to os.Stderr; set
	// io.Discard to silence it.
	Console io.Writer
}

// Logger owns the debug log file behind a zerolog.Logger.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
}

// New creates the logger. A debug file that cannot be opened is reported on
// the console and logging continues without it.
func New(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleWriter := zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}
	l := &Logger{}

	if !opts.Debug {
		l.zlog = zerolog.New(consoleWriter).Level(zerolog.WarnLevel).With().Timestamp().Logger()
		return l, nil
	}

	if opts.Dir == "" {
		return nil, fmt.Errorf("debug logging needs a directory")
	}
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l.logPath = filepath.Join(opts.Dir, "debug.log")
	file, err := os.OpenFile(l.logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	l.file = file

	warnings := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: consoleWriter},
		Level:  zerolog.WarnLevel,
	}
	multi := zerolog.MultiLevelWriter(file, warnings)

	l.zlog = zerolog.New(multi).Level(zerolog.DebugLevel).With().
		Timestamp().
		Str("app", "parley").
		Logger()
	l.zlog.Debug().
		Str("log_path", l.logPath).
		Time("started", time.Now()).
		Msg("debug logging started")

	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Component returns a sub-logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Path returns the debug log path, empty when not in debug mode.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the debug log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.zlog.Debug().Msg("debug logging stopped")
	return l.file.Close()
}
