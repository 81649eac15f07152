package core

import (
	"fmt"
	"log"
	"strings"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (e.g., integration with logrus, zap, etc.)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogLevel orders log severities for DefaultLogger filtering.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// DefaultLogger is a simple logger implementation using the standard log package.
// Messages below MinLevel are dropped; the zero value logs everything.
type DefaultLogger struct {
	MinLevel LogLevel
}

// NewDefaultLogger creates a DefaultLogger at Info level.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{MinLevel: LevelInfo}
}

// NewDebugLogger creates a DefaultLogger that also prints Debug messages.
func NewDebugLogger() *DefaultLogger {
	return &DefaultLogger{MinLevel: LevelDebug}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields...)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields...)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields...)
}

func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields...)
}

func (l *DefaultLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.MinLevel {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	if len(fields) > 0 {
		b.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", f.Key, f.Value)
		}
		b.WriteString("}")
	}
	log.Println(b.String())
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
