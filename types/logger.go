package types

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal logging surface the engine depends on. It is
// deliberately small — Printf plus three leveled variants — so any
// structured logger in an embedding application can satisfy it with a
// one-line adapter.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// logrusLogger is the default Logger, backed by a structured logrus
// instance. Production embedders are expected to supply their own via
// WithLogger; this default exists so the engine is usable standalone.
type logrusLogger struct {
	entry *logrus.Entry
}

// DefaultLogger returns the engine's out-of-the-box Logger: logrus,
// text-formatted, writing to stderr at Info level.
func DefaultLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusLogger adapts a caller-supplied *logrus.Logger, e.g. one
// already wired to the embedding application's own formatter/hooks.
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Printf(format string, v ...interface{}) { l.entry.Infof(format, v...) }
func (l *logrusLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
