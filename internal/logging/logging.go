// Package logging builds the process logger from the LOG_HANDLER and
// LOG_LEVEL settings.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/ggoodman/shiprocket-mcp-go/internal/logctx"
)

// Handler names accepted by New.
const (
	HandlerJSON = "json"
	HandlerText = "text"
	HandlerDev  = "dev"
)

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
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

// New returns a logger writing to w in the named format. "dev" renders
// colourised single-line output; "text" is logfmt; anything else is JSON.
// The result decorates records with context data from logctx.
func New(w io.Writer, handler, level string) *slog.Logger {
	lvl := ParseLevel(level)

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(handler)) {
	case HandlerDev:
		h = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: "[15:04:05.000]",
		})
	case HandlerText, "txt":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	return logctx.Wrap(slog.New(h))
}
