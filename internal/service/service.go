package service

import (
	"context"

	"github.com/diagnosis/campus-tickets/pkg/events"
	"github.com/diagnosis/campus-tickets/pkg/logger"
)

// publish is fire-and-forget; a bus failure never fails the operation.
func publish(ctx context.Context, bus events.Publisher, subject string, data any) {
	if err := bus.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
