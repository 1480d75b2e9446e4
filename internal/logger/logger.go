// Package logger configures the process-wide zerolog.Logger: a
// human-readable console writer plus, when a log file path is supplied, a
// plain JSON file sink so operators can tail structured logs separately
// from the console.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Options configures Init.
type Options struct {
	// Verbose lowers the minimum level to debug; otherwise info.
	Verbose bool
	// FilePath, if non-empty, receives a second JSON-formatted copy of
	// every log line in addition to the console writer.
	FilePath string
}

var logFile *os.File

// Init builds the global zerolog.Logger and installs it as zerolog's
// package-level logger (zlog.Logger), so callers anywhere in the module
// can use github.com/rs/zerolog/log directly.
func Init(opts Options) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	var writer io.Writer = console
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		logFile = f
		writer = zerolog.MultiLevelWriter(console, f)
	}

	l := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	zlog.Logger = l
	return l, nil
}

// Close releases the log file opened by Init, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
