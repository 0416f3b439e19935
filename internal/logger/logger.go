// Package logger provides the process-wide structured logger. Commands
// install a configured slog.Logger at startup; library code asks for it
// via Get and never writes to stderr directly.
package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	current *slog.Logger
)

// Configure installs the global logger. debug raises the level to Debug.
func Configure(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	current = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Get returns the installed logger, falling back to an info-level text
// handler when Configure has not run (tests, library embedding).
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if current != nil {
		return current
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
