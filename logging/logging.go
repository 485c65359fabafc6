// Package logging builds the logrus logger shared by the profiler's packages
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger at the named level ("debug", "info", "warn", "error").
// An empty file logs to stderr, otherwise the file is opened for append.
// The returned closer releases the file and is never nil.
func New(level, file string) (*logrus.Logger, io.Closer, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	var closer io.Closer = nopCloser{}
	if file == "" {
		l.SetOutput(os.Stderr)
	} else {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: opening log file: %w", err)
		}
		l.SetOutput(f)
		closer = f
	}
	return l, closer, nil
}

// Discard returns a logger which drops everything
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
