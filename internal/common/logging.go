package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger = log.New(os.Stderr, "[bmppatch] ", log.LstdFlags|log.Lmicroseconds)
)

// LogOptions configures the optional rotating log file.
type LogOptions struct {
	Directory  string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
	// Quiet drops the stderr copy and logs to the file only.
	Quiet bool
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

// SetLogOutput redirects the package logger.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetupLogging tees the logger into a size-rotated file under opts.Directory.
// Without a directory a quiet logger is silenced. The returned closer releases
// the file.
func SetupLogging(opts LogOptions) (io.Closer, error) {
	if opts.Directory == "" {
		if opts.Quiet {
			logger.SetOutput(io.Discard)
		} else {
			logger.SetOutput(os.Stderr)
		}
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Directory, "bmppatch.log"),
		MaxSize:    opts.MaxSizeMB,
		MaxAge:     opts.MaxAgeDays,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}
	if opts.Quiet {
		logger.SetOutput(rotator)
	} else {
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
	return rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
