package logger

import (
	"os"
	"strings"
)

// LogLevel defines the severity threshold for a logger.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "NONE"
	}
}

// GetLevelFromEnv reads the `PRAKTIKUM_LOG_LEVEL` environment variable and
// converts it into the appropriate LogLevel.
func GetLevelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("PRAKTIKUM_LOG_LEVEL")) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the logging interface used throughout the module.
type Logger interface {
	// With returns a new logger which includes metadata with every entry
	With(metadata map[string]interface{}) Logger
	// WithPrefix returns a new logger with a prefix prepended to each message
	WithPrefix(prefix string) Logger
	// Trace level logging
	Trace(msg string, args ...interface{})
	// Debug level logging
	Debug(msg string, args ...interface{})
	// Info level logging
	Info(msg string, args ...interface{})
	// Warn level logging
	Warn(msg string, args ...interface{})
	// Error level logging
	Error(msg string, args ...interface{})
	// Fatal level logging followed by exit with code 1
	Fatal(msg string, args ...interface{})
	// IsLevelEnabled returns true if the given log level would be emitted
	IsLevelEnabled(level LogLevel) bool
}
