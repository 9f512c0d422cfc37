package adcsim

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger receives human readable lines about server activity, e.g. a TUI log panel.
type Logger interface {
	Append(text string)
}

// SlogAppender forwards Append calls to a slog.Logger at info level. A leading time.DateTime stamp
// is dropped since slog records its own time.
type SlogAppender struct {
	Log *slog.Logger
}

func (a SlogAppender) Append(text string) {
	a.Log.Info(stripTimestamp(text))
}

func stripTimestamp(text string) string {
	n := len(time.DateTime)
	if len(text) > n && text[n] == ' ' {
		if _, err := time.Parse(time.DateTime, text[:n]); err == nil {
			return text[n+1:]
		}
	}
	return text
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a slog.Logger from cfg. The returned closer releases the log file, if any.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("log output file requires file_path")
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	default:
		return nil, nil, fmt.Errorf("unknown log output: %s", cfg.Output)
	}
	return NewLoggerTo(w, cfg), closer, nil
}

// NewLoggerTo builds a slog.Logger writing to w with cfg's level and format.
func NewLoggerTo(w io.Writer, cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
