package dispatch

import (
	"context"
	"log/slog"
)

// LevelTrace sits just above Info so dispatch traces can be filtered
// independently of regular logs.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs a dispatch event at the trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}
