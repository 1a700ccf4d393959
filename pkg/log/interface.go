// Package log provides the structured logging interface used across CloudPred.
//
// The Logger interface is slog-compatible so the backend can be swapped; the
// default backend writes JSON lines through zerolog. Training code logs with
// the attribute keys defined in attributes.go so runs can be filtered by
// estimator id, learning-rate stage or epoch.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "DensityClassifier",
//	    log.EstimatorIDKey, runID,
//	)
//	logger.Debug("stage started",
//	    log.LearningRateKey, 0.1,
//	    log.EpochKey, 0,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. Error values are rendered
// with their message and, when produced by cockroachdb/errors, a stack trace.
type Logger interface {
	// Debug logs a debug-level message. Per-epoch training progress goes here.
	Debug(msg string, fields ...any)

	// Info logs an info-level message.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message.
	Warn(msg string, fields ...any)

	// Error logs an error-level message.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	// Use it to skip building expensive fields.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
