// Package logging provides the Logger abstraction used across the
// runtime. Every component takes a Logger at construction time; there
// is no package-level global.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used by every core component, so the
// collective engine and transport code never depend on logrus
// directly.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool

	// With returns a derived Logger that attaches the given fields to
	// every subsequent record. Used to tag a logger with node id,
	// group name, or request number at construction boundaries.
	With(fields map[string]interface{}) Logger
}

// logrusLogger backs Logger with a *logrus.Entry.
type logrusLogger struct {
	entry *logrus.Entry
	base  *logrus.Logger
}

// NewDefaultLogger builds the logger used when the caller does not
// supply its own: plain text to stderr, info level.
func NewDefaultLogger() Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(base), base: base}
}

// NewWithLevel builds a logger at the given level name ("debug",
// "info", "warn", "error"); an unrecognized level falls back to info.
func NewWithLevel(level string) Logger {
	l := NewDefaultLogger().(*logrusLogger)
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.base.SetLevel(parsed)
	return l
}

func (l *logrusLogger) Info(v ...interface{})                 { l.entry.Info(v...) }
func (l *logrusLogger) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(v ...interface{})                 { l.entry.Warn(v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(v ...interface{})                { l.entry.Error(v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }

func (l *logrusLogger) Debug(v ...interface{}) {
	l.entry.Debug(v...)
}

func (l *logrusLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *logrusLogger) Fatal(v ...interface{}) {
	l.entry.Fatal(v...)
}

func (l *logrusLogger) Fatalf(format string, v ...interface{}) {
	l.entry.Fatalf(format, v...)
}

func (l *logrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.base.SetLevel(logrus.DebugLevel)
	} else {
		l.base.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (l *logrusLogger) With(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields), base: l.base}
}
