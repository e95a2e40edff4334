package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()

	// Set output to stdout
	Logger.SetOutput(os.Stdout)
	Logger.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))

	// Set JSON formatter for structured logging
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// ParseLevel maps LOG_LEVEL values to logrus levels, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel changes the level of the shared logger.
func SetLevel(level string) {
	Logger.SetLevel(ParseLevel(level))
}

// Component returns an entry tagged with the emitting component.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

// WithFields creates a new entry with the given fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithField creates a new entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithError creates a new entry with an error field
func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Info logs an info message
func Info(msg string) {
	Logger.Info(msg)
}

// Error logs an error message
func Error(msg string) {
	Logger.Error(msg)
}

// Debug logs a debug message
func Debug(msg string) {
	Logger.Debug(msg)
}

// Warn logs a warning message
func Warn(msg string) {
	Logger.Warn(msg)
}
