package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hollowaylabs/atfetch/pkg/config"
)

// Init builds the process logger. Diagnostics go to stderr (stdout may be
// the serial console) and, when a file is configured, to a size-rotated log.
func Init(cfg config.LogConfig) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
		}
		w = io.MultiWriter(os.Stderr, rotator)
	}

	log := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}))
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
