// Package logging provides the timestamped debug logger shared by the
// search, composition and marketplace components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the logging surface components depend on.
type Logger interface {
	Log(format string, args ...interface{})
}

// DebugLogger writes timestamped lines to a file or writer.
// It is safe for concurrent use.
type DebugLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	sync   func() error
}

// NewDebugLogger creates a logger appending to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{w: f, closer: f, sync: f.Sync}
	logger.Log("=== marktools debug log started at %s ===", time.Now().Format(time.RFC3339))

	return logger, nil
}

// NewWriterLogger creates a logger writing to w, typically os.Stderr.
func NewWriterLogger(w io.Writer) *DebugLogger {
	return &DebugLogger{w: w}
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message.
// If the logger is nil or has no destination, this is a no-op.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.w == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.w, "[%s] %s\n", timestamp, msg)
	if l.sync != nil {
		_ = l.sync()
	}
}

// Close closes the underlying file, if any.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closer.Close()
}

// Func adapts a logger to the func-style hook used by graph.SetDebugLog.
func Func(l Logger) func(format string, args ...interface{}) {
	if l == nil {
		return func(string, ...interface{}) {}
	}
	return l.Log
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}
