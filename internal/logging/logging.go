// Package logging sets up the logrus logger shared by the cell monitor tools.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// LogArgs can be embedded in a go-arg Args struct to add the log level flag.
type LogArgs struct {
	LogLevel string `arg:"-l,--loglevel" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

// Logger wraps a logrus logger so packages can hold it as a package level
// variable and swap it once the log level is known.
type Logger struct {
	*logrus.Logger
}

// NewLogger returns a logger writing to stderr at the given level. An unknown
// level falls back to info.
func NewLogger(levelStr string) *Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
		l.SetLevel(level)
		l.Warnf("Unknown log level '%s', using info", levelStr)
		return &Logger{Logger: l}
	}
	l.SetLevel(level)
	return &Logger{Logger: l}
}
