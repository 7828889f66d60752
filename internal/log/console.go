package log

import (
	"io"

	"github.com/sirupsen/logrus"

	"firestige.xyz/pcapsift/internal/config"
)

// Logger prints human-readable status lines for the operator.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithError(err error) Logger
}

type logrusAdapter struct {
	entry *logrus.Entry
}

// NewConsole creates a logrus-backed console logger writing to w.
// An unknown level falls back to info.
func NewConsole(cfg config.ConsoleConfig, w io.Writer) Logger {
	l := logrus.New()
	l.SetFormatter(&formatter{
		pattern: cfg.Pattern,
		time:    cfg.TimeFormat,
	})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetOutput(w)

	return &logrusAdapter{
		entry: logrus.NewEntry(l),
	}
}

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}
