package gazecapture

import (
	"context"
	"log/slog"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// NewSlogSink returns a LogFunc that forwards SDK log lines at or above min
// severity to logger.
//
// The returned function is safe to call from any thread, including before the
// API context constructor returns: it holds no locks of its own and relies on
// the slog handler, which is safe for concurrent use.
func NewSlogSink(logger *slog.Logger, min LogLevel) LogFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(level native.LogLevel, text string) {
		if level > min {
			return
		}
		logger.Log(context.Background(), slogLevel(level), "gaze-capture: sdk log",
			"sdk_level", level.String(),
			"text", text,
		)
	}
}

func slogLevel(level native.LogLevel) slog.Level {
	switch level {
	case native.LogError:
		return slog.LevelError
	case native.LogWarn:
		return slog.LevelWarn
	case native.LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// ParseLogLevel parses an SDK severity name ("error", "warn", "info", "debug", "trace").
func ParseLogLevel(name string) (LogLevel, bool) {
	for l := native.LogError; l <= native.LogTrace; l++ {
		if l.String() == name {
			return l, true
		}
	}
	return 0, false
}
