package sdspi

import (
	"context"
	"log/slog"
)

// logging wrappers following cyrw/debug.go's shape: a level-gated print
// through the handle's *slog.Logger, a no-op when none was configured.

func (h *Handle) logerr(msg string, attrs ...slog.Attr) {
	h.logattrs(slog.LevelError, msg, attrs...)
}

func (h *Handle) warn(msg string, attrs ...slog.Attr) {
	h.logattrs(slog.LevelWarn, msg, attrs...)
}

func (h *Handle) info(msg string, attrs ...slog.Attr) {
	h.logattrs(slog.LevelInfo, msg, attrs...)
}

func (h *Handle) debug(msg string, attrs ...slog.Attr) {
	h.logattrs(slog.LevelDebug, msg, attrs...)
}

func (h *Handle) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if h.cfg.Logger == nil {
		return
	}
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	h.cfg.Logger.Log(context.Background(), level, msg, args...)
}
