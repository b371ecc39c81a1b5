// Package logging provides structured logging configuration using zerolog,
// plus the adapter that turns a component logger into a pipeline progress
// sink.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// EventSink adapts a component logger to the pipeline's progress sink
// contract: every emitted line becomes one info-level log event. zerolog
// serializes writes, so concurrent emitters never interleave.
type EventSink struct {
	logger zerolog.Logger
}

// NewEventSink creates an EventSink for the given component.
func NewEventSink(component string) *EventSink {
	return &EventSink{logger: NewLogger(component)}
}

// Emit logs one progress line.
func (s *EventSink) Emit(line string) {
	s.logger.Info().Msg(line)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page cache operations (hit/miss, key, TTL)
//   - Throttle gate decisions
//   - Per-worker batch accounting
//
// Info: Normal operation events
//   - Run start/completion, phase summaries
//   - Batch fetched lines, write chunk confirmations
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and per-batch permanent failures
//   - Throttling active (Retry-After honored)
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Token acquisition failure, total count failure
//   - Destination write chunk failures
//   - Configuration errors
