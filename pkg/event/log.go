package event

import (
	"context"
	"log/slog"
)

// LogHandler writes every event as a station log line.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, e Event) error {
		level := slog.LevelInfo
		switch e.Kind {
		case KindArrivalCancelled, KindPumpCancelled, KindAbandoned:
			level = slog.LevelWarn
		case KindArrives, KindEntersQueue:
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, e.String(), "kind", e.Kind, "seq", e.Seq)
		return nil
	}
}
