package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cortexuvula/roomsync/internal/config"
	"github.com/cortexuvula/roomsync/internal/logring"
)

// level backs the default logger so SetLevel can change verbosity on reload.
var level = new(slog.LevelVar)

// Setup configures the global slog logger based on config settings. When
// recent is non-nil every record is also captured there.
// Returns the lumberjack logger (if file logging) so it can be closed on shutdown.
func Setup(cfg config.LoggingConfig, recent *logring.Buffer) *lumberjack.Logger {
	return setup(cfg, os.Stdout, recent)
}

func setup(cfg config.LoggingConfig, stdout io.Writer, recent *logring.Buffer) *lumberjack.Logger {
	w := stdout
	var lj *lumberjack.Logger

	if cfg.File != "" {
		lj = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = lj
	}

	level.Set(parseLevel(cfg.Level))

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	if recent != nil {
		handler = logring.NewTee(handler, recent)
	}

	slog.SetDefault(slog.New(handler).With("service", "roomsync"))
	return lj
}

// SetLevel changes the level of the logger installed by Setup.
func SetLevel(l string) {
	level.Set(parseLevel(l))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
