// Package logger sets up the process-wide slog logger; level and format come from the environment.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// Setup builds the default logger from LOG_LEVEL (debug|info|warn|error) and
// LOG_FORMAT (json|text). Output always goes to stderr.
func Setup() *slog.Logger {
	return SetupWriter(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// SetupWriter is Setup with an explicit destination, used by tests.
func SetupWriter(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	l := slog.New(h)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return l
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L returns the default logger, running Setup on first use.
// Constraint: safe for concurrent use; tests may replace the logger with SetupWriter.
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}
