package cryptoutil

import (
	"github.com/sirupsen/logrus"
)

// Logger provides standardized structured-logging fields for a single
// function call, matching the pattern the teacher repo uses per package:
// every log line carries "package" and "function" fields so logs can be
// filtered by call site without string parsing.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger starts a logger scoped to pkg/function.
func NewLogger(pkg, function string) *Logger {
	return &Logger{
		entry: logrus.WithFields(logrus.Fields{
			"package":  pkg,
			"function": function,
		}),
	}
}

// With returns a copy of the logger carrying an additional field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError attaches an error and its taxonomy kind to the logger.
func (l *Logger) WithError(err error, errorType string) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields{
		"error":      err.Error(),
		"error_type": errorType,
	})}
}

func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }
func (l *Logger) Info(msg string)  { l.entry.Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *Logger) Error(msg string) { l.entry.Error(msg) }
