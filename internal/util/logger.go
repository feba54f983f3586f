// internal/util/logger.go
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig describes where and how the service logs.
type LogConfig struct {
	Level      string // "debug", "info", "warn", "error"
	Format     string // "json" or "text"
	File       string // Optional rotating log file in addition to stdout
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var logger *slog.Logger

// InitLogger initializes the global structured logger.
// JSON is the default handler; "text" is easier to read during local runs.
func InitLogger(cfg LogConfig) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// GetLogger returns the initialized global logger.
func GetLogger() *slog.Logger {
	if logger == nil {
		InitLogger(LogConfig{Level: "info"})
	}
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
