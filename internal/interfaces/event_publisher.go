package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

// EventPublisher announces persisted status changes.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event models.StatusChangedEvent) error
}
