package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log discards everything until Init is called.
var Log = slog.New(slog.NewTextHandler(io.Discard, nil))

func Init(logFilePath, level string) error {
	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}

	Log = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: ParseLevel(level)}))
	Log.Info("logger initialized", "path", logFilePath)
	return nil
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
