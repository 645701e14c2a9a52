// Package logging builds the daemon logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level      string // debug, info, warn, error
	File       string // empty: stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Prefix     string
}

// New returns a logger and a closer for its output. With a File the output
// is rotated by size; otherwise it goes to stderr with colour when stderr is
// a terminal.
func New(opts Options) (*log.Logger, func() error, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var (
		w      io.Writer = os.Stderr
		closer           = func() error { return nil }
	)
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		w = lj
		closer = lj.Close
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
		Level:           level,
		Prefix:          opts.Prefix,
	})
	if opts.File != "" {
		logger.SetFormatter(log.LogfmtFormatter)
		logger.SetTimeFormat(time.RFC3339Nano)
	}
	return logger, closer, nil
}
