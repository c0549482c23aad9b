package internal

import (
	"log"
	"os"
)

// LogLevel controls which messages a Logger emits
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel maps a LOG_LEVEL string to a level; unknown or empty
// values fall back to INFO.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "ERROR":
		return LogLevelError
	case "WARN":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// Logger is a leveled logger for pipeline progress. Runs are batch jobs, so
// output goes through the stdlib log package; level filtering is the only
// structure a run log needs.
type Logger struct {
	level LogLevel
}

// NewLogger creates a logger emitting messages at or below level
func NewLogger(level LogLevel) *Logger {
	return &Logger{level: level}
}

// NewDefaultLogger creates a logger configured from the LOG_LEVEL
// environment variable.
func NewDefaultLogger() *Logger {
	return NewLogger(ParseLogLevel(os.Getenv("LOG_LEVEL")))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.emit(LogLevelError, "[ERROR] "+format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit(LogLevelWarn, "[WARN] "+format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.emit(LogLevelInfo, "[INFO] "+format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.emit(LogLevelDebug, "[DEBUG] "+format, args...)
}

func (l *Logger) emit(level LogLevel, format string, args ...interface{}) {
	if l.level >= level {
		log.Printf(format, args...)
	}
}
