package log

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger defines the interface for structured logging operations.
//
// Example usage:
//
//	logger.Info("Portfolio created", Int64("portfolio_id", id))
//	reqLogger := logger.WithContext(ctx)
//	reqLogger.Error("Commit failed", Error(err))
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Fatal logs the message and terminates the process.
	Fatal(msg string, fields ...Field)

	// With returns a child logger that carries fields on every entry.
	With(fields ...Field) Logger

	// WithContext returns a child logger carrying the request ID and
	// account ID found in ctx, if any.
	WithContext(ctx context.Context) Logger
}

// Level represents the logging level. Lower values are more verbose.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the logging level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string such as "info" into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Field represents a structured logging field with a key-value pair.
type Field struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field keyed "error".
func Error(err error) Field {
	return Field{Key: FieldError, Value: err}
}

// Any creates a field with any value type.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
