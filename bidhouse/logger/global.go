package logger

import (
	"log/slog"
	"time"
)

// LogBid logs the outcome of a ledger operation.
func LogBid(op string, itemID int64, actorID string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "bid"),
		slog.String("op", op),
		slog.Int64("item_id", itemID),
		slog.String("actor_id", actorID),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Info("Ledger operation rejected", append(attrs, slog.String("reason", err.Error()))...)
	} else {
		slog.Info("Ledger operation committed", attrs...)
	}
}

// LogSweep logs one pass of the expiry sweep. Empty passes are only visible at debug level.
func LogSweep(scanned, finalized, skipped, failed int, duration time.Duration) {
	attrs := []any{
		slog.String("type", "sched"),
		slog.Int("scanned", scanned),
		slog.Int("finalized", finalized),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("took", duration),
	}

	switch {
	case failed > 0:
		slog.Warn("Expiry sweep finished with failures", attrs...)
	case scanned > 0:
		slog.Info("Expiry sweep completed", attrs...)
	default:
		slog.Debug("Expiry sweep found nothing", attrs...)
	}
}

// LogPublish logs a delivery failure on the event channel.
func LogPublish(topic string, itemID int64, event string, err error) {
	slog.Warn("Failed to publish event",
		slog.String("type", "event"),
		slog.String("topic", topic),
		slog.Int64("item_id", itemID),
		slog.String("event", event),
		slog.String("error", err.Error()))
}

func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
		slog.String("query", query),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Debug("Query executed", attrs...)
	}
}

// LogSystem logs system events
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
