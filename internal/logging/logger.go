// Package logging provides the proxy's logging interface.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger with the small surface the proxy's
// session and accept layers call into.
type Logger struct {
	logger *slog.Logger
	debug  bool
}

// NewLogger creates a logger writing text-formatted records to
// stderr, at debug level when debug is true and info level otherwise.
func NewLogger(debug bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Logger{logger: slog.New(handler), debug: debug}
}

// With returns a Logger that prepends the given key/value pairs to
// every subsequent record, for attaching a connection or card handle
// to everything a session logs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), debug: l.debug}
}

// Info logs an informational message with structured fields.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// Debug logs a debug message with structured fields.
func (l *Logger) Debug(msg string, args ...any) {
	if l.debug {
		l.logger.Debug(msg, args...)
	}
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...any) {
	if l.debug {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}
}

// Warn logs a warning message with structured fields.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error with structured fields.
func (l *Logger) Error(msg string, err error, args ...any) {
	l.logger.Error(msg, append([]any{"error", err}, args...)...)
}

// FatalError logs err and exits the process. Used only from cmd/, for
// the top-level error a command can't recover from.
func (l *Logger) FatalError(err error) {
	l.logger.Error(err.Error())
	os.Exit(1)
}

// DefaultLogger returns a default logger instance with debug=false.
func DefaultLogger() *Logger {
	return NewLogger(false)
}
