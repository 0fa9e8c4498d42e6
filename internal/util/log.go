package util

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects level, encoding and an optional rotated file sink.
type LogOptions struct {
	Level  string
	Format string // json | console
	File   string
}

func NewLogger(level string) zerolog.Logger {
	return NewLoggerWith(LogOptions{Level: level})
}

// NewLoggerWith builds a logger writing to stdout and, when File is set, to a size-rotated JSON file.
func NewLoggerWith(opts LogOptions) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     7,
				Compress:   true,
			})
		}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
