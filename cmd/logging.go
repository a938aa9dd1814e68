package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// setupLogging sets the logrus level and sends diagnostics to stderr and,
// when path is set, appends them to the diagnostic log file as well.
// The returned func closes the file.
func setupLogging(level, path string) (func() error, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})

	if path == "" {
		logrus.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() error {
		logrus.SetOutput(os.Stderr)
		return f.Close()
	}, nil
}
