package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger
type Options struct {
	Level      string
	JSON       bool // JSON records on stdout instead of text
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a logger that fans out to a console handler on stdout, a JSON
// error handler on stderr and, when File is set, a rotating JSON file.
// The returned closer flushes and closes the log file.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)

	handlers := []slog.Handler{
		consoleHandler(os.Stdout, opts.JSON, level),
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    max(opts.MaxSizeMB, 10),
				MaxBackups: max(opts.MaxBackups, 3),
				Compress:   true,
				LocalTime:  true,
			}
			handlers = append(handlers, slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level}))
			closer = rotator
		}
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer
}

func consoleHandler(w io.Writer, json bool, level slog.Level) slog.Handler {
	if json {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
