// Package logging hands out per-component logrus loggers that share one
// level, format and output.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	base = newBase()
)

func newBase() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	levelStr := "info"
	if env := os.Getenv("MOTIONREC_LOG_LEVEL"); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewLogger returns the logger for a component. Loggers are cached, so
// callers may ask for the same component repeatedly.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	entry := base.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Configure applies level and format ("text" or "json") to every logger.
// An unknown level falls back to info and is reported back as an error.
func Configure(levelStr, format string) error {
	switch format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if levelStr == "" {
		return nil
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		base.SetLevel(logrus.InfoLevel)
		return err
	}
	base.SetLevel(level)
	return nil
}

// SetOutput redirects all component loggers
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}
