package telemetry

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
)

type slogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter writes events as structured log lines. It is the console
// sink and is always active, whether or not forwarding is enabled.
func NewSlogEmitter(logger *slog.Logger) Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogEmitter{logger: logger}
}

func (e *slogEmitter) Emit(ctx context.Context, event domain.AuthEvent) error {
	level := slog.LevelInfo
	if event.Outcome == domain.OutcomeFailure {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", string(event.Outcome)))
	}
	if event.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", event.ErrorCode))
	}
	if event.Latency > 0 {
		attrs = append(attrs, slog.Int64("latency_ms", event.Latency.Milliseconds()))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	e.logger.LogAttrs(ctx, level, "auth_event", attrs...)
	return nil
}
