package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Log bundles the level switch with the logger so commands can raise
// verbosity after the logger has been handed out.
type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger is the global logger instance
var Logger *Log

func init() {
	Logger = New(os.Stderr, "text")
}

// New builds a logger writing to w. format is "text", "json" or "auto";
// auto picks json when w is not a terminal.
func New(w io.Writer, format string) *Log {
	level := &slog.LevelVar{}
	level.Set(slog.LevelError)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}

	var handler slog.Handler
	if useJSON(w, format) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Log{LevelVar: level, Logger: slog.New(handler)}
}

func useJSON(w io.Writer, format string) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "auto":
		f, ok := w.(*os.File)
		return ok && !term.IsTerminal(int(f.Fd()))
	}
	return false
}

// SetLogLevel accepts debug, info, warn or error. Unknown values are ignored.
func (l *Log) SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn", "warning":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	}
}

// Configure replaces the global logger, keeping the current level.
func Configure(w io.Writer, format string) {
	current := Logger.Level()
	Logger = New(w, format)
	Logger.Set(current)
}

func (l *Log) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
