package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/avendale/tradepost/internal/domain"
)

// emit fans one event out to the durable stream, the per-type pub/sub
// channel, and the audit log. Emission is best-effort: the state transition
// already committed, so a delivery failure is logged, never propagated.
func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.ErrorContext(ctx, "engine: marshal event",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := e.bus.StreamAppend(ctx, EventStream, payload); err != nil {
		e.logger.WarnContext(ctx, "engine: stream append failed",
			slog.String("type", string(ev.Type)),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := e.bus.Publish(ctx, EventChannelPrefix+string(ev.Type), payload); err != nil {
		e.logger.WarnContext(ctx, "engine: publish event failed",
			slog.String("type", string(ev.Type)),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := e.store.Audit().Log(ctx, string(ev.Type), map[string]any{
		"event_id": ev.ID,
		"at":       ev.At,
		"body":     ev.Body,
	}); err != nil {
		e.logger.WarnContext(ctx, "engine: audit log failed",
			slog.String("type", string(ev.Type)),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}
