// Package logger provides a structured, module-aware logging system built on Go's standard log/slog.
//
// # Quick Start
//
//	cfg := &logger.LoggingConfig{
//	    DefaultLevel: "info",
//	    Console: &logger.ConsoleOutput{Enabled: true, Level: "info"},
//	}
//
//	centralLogger, err := logger.NewCentralLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer centralLogger.Close()
//
//	workerLog := centralLogger.Module("worker")
//	workerLog.Info("classifier started", logger.Int("pid", pid))
//
// Module loggers nest: centralLogger.Module("datastore").Module("sqlite") logs
// with module="datastore.sqlite".
//
// # Testing
//
// Use a buffer or discard logger in tests:
//
//	buf := &bytes.Buffer{}
//	testLogger := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
//
//	silent := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
//
// # Configuration
//
//	logging:
//	  default_level: "info"
//	  timezone: "UTC"
//	  console:
//	    enabled: true
//	    level: "info"
//	  file_output:
//	    enabled: true
//	    path: "logs/floranet.log"
//	    level: "debug"
//	  module_levels:
//	    worker: "debug"
//
// Console output is human-readable text; file output is JSON.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned using unique.Make() so the same key string shares
// a single allocation across log calls.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

// Pre-interned common keys
var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	// Log with explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String creates a string field for structured logging.
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an integer field for structured logging.
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates a 64-bit integer field for structured logging.
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 creates an unsigned 64-bit integer field for structured logging.
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a 64-bit float field for structured logging.
// Values are rounded to three decimals in the output.
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a boolean field for structured logging.
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field for structured logging.
//
// The field key is always "error". If err is nil, the value will be nil.
//
//	if err := repo.Save(obs); err != nil {
//	    log.Error("failed to save observation",
//	        logger.Error(err),
//	        logger.Uint64("observation_id", obs.ID))
//	    return err
//	}
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration creates a duration field for structured logging.
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}

// Any creates a field with any value for structured logging.
// Prefer the type-specific constructors for simple types.
func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
