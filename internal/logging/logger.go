// Package logging provides centralized structured logging for the gryag assistant core.
//
// Log Level Semantics:
//   - Error: Unrecoverable errors and unexpected states indicating bugs
//   - Warn: Recoverable issues, missing data, fallbacks (e.g., unknown model, no token usage)
//   - Info: High-level operations (client creation, API selection, model info)
//   - Debug: Detailed execution trace (stream events, tool calls, token updates, raw data)
//
// The log level can be controlled via:
//  1. GRYAG_LOG_LEVEL environment variable (0=Error, 1=Warn, 2=Info, 3=Debug)
//  2. logging.SetLevel() function for programmatic control
//
// All logging is global and process-wide: it affects every component from the turn orchestrator down to the persistence layer.
package logging

import (
	"log/slog"
	"os"
)

var (
	logLevel = new(slog.LevelVar)
	logger   *slog.Logger
)

func init() {
	level := parseLogLevel(os.Getenv("GRYAG_LOG_LEVEL"))
	logLevel.Set(level)

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger = slog.New(handler)
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	return logger
}

// SetLevel sets the global log level for the process.
//
// Changes take effect immediately for all future log calls.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// parseLogLevel converts GRYAG_LOG_LEVEL environment variable values to slog levels.
// Mapping: 0=Error, 1=Warn, 2=Info, 3=Debug
// Default: Warn if not set or invalid
func parseLogLevel(envVal string) slog.Level {
	switch envVal {
	case "0":
		return slog.LevelError
	case "1":
		return slog.LevelWarn
	case "2":
		return slog.LevelInfo
	case "3":
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}
