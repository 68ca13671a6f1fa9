// Package logger holds the process-wide structured logger shared by the agent
// packages.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z",
	})
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)

	return l
}

// New returns an entry tagged with the given component name.
func New(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// ParseLevel maps a level name to a logrus level. Unknown names fall back to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "fatal":
		return logrus.FatalLevel
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel changes the level of every logger returned by New.
func SetLevel(level string) {
	base.SetLevel(ParseLevel(level))
}

// SetOutput redirects all log output. Tests use it to capture or silence logs.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}
