// Package logging holds the process-wide logrus logger. Packages log through
// Component entries so every line carries the subsystem that wrote it.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the shared logger. Tests may replace it.
var Logger = newLogger(os.Stderr)

type (
	// Fields is logrus.Fields.
	Fields = logrus.Fields
	// Entry is logrus.Entry.
	Entry = logrus.Entry
)

// Format selects the line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures Setup.
type Options struct {
	Level  string
	Format Format
	// File, when set, receives a copy of everything written to stderr.
	File string
}

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(formatter(FormatText))
	return l
}

func formatter(f Format) logrus.Formatter {
	if f == FormatJSON {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error, in any case.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// ParseFormat accepts text and json. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q (must be text or json)", s)
	}
}

// Setup applies opts to Logger. The returned closer releases the log file
// and is never nil.
func Setup(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nopCloser{}, err
	}
	Logger.SetLevel(level)
	Logger.SetFormatter(formatter(opts.Format))

	if opts.File == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Component returns an entry tagged with the subsystem name.
func Component(name string) *Entry {
	return Logger.WithField("component", name)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) { Logger.Debugf(format, args...) }

// Infof logs a formatted info message.
func Infof(format string, args ...any) { Logger.Infof(format, args...) }

// Warnf logs a formatted warning message.
func Warnf(format string, args ...any) { Logger.Warnf(format, args...) }

// Errorf logs a formatted error message.
func Errorf(format string, args ...any) { Logger.Errorf(format, args...) }
