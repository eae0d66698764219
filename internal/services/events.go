package services

import (
	"context"
	"log/slog"

	"mcdry/internal/amqp"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, e amqp.LedgerEvent) error
}

// publish runs after commit. The write already happened, so a broker
// failure is logged and swallowed.
func publish(ctx context.Context, p EventPublisher, e amqp.LedgerEvent) {
	if p == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping ledger event", "type", e.Type)
		return
	}
	if err := p.PublishLedgerEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", e.Type,
			"member_id", e.MemberID,
			"entity_id", e.EntityID,
			"error", err)
	}
}
