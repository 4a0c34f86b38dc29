package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "DOCRAG_LOG_LEVEL"

var level = new(slog.LevelVar)

// Configure installs the default logger. format is "text" or "json"; the level
// comes from DOCRAG_LOG_LEVEL when present, otherwise from cfgLevel. Info is the fallback.
func Configure(cfgLevel, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := cfgLevel
	if env := os.Getenv(EnvLevel); env != "" {
		lvl = env
	}
	level.Set(ParseLevel(lvl))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the level of the logger installed by Configure.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to a level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
