package ui

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger prints plain leveled lines. Debug output is dropped unless Debug is set.
type Logger struct {
	Debug bool

	entry *logrus.Entry
}

func NewLogger(debug bool) *Logger {
	return NewLoggerTo(os.Stderr, debug)
}

func NewLoggerTo(w io.Writer, debug bool) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}

	return &Logger{Debug: debug, entry: logrus.NewEntry(l)}
}

// WithField returns a logger that tags every line with key=value.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Debug: l.Debug, entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.entry.Debugf(trimNewline(format), args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(trimNewline(format), args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warnf(trimNewline(format), args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Errorf(trimNewline(format), args...)
}

// logrus terminates every entry itself
func trimNewline(format string) string {
	return strings.TrimRight(format, "\n")
}
