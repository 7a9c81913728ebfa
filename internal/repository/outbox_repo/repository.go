package outbox_repo

import (
	"context"
	"time"

	"ordersaga/internal/domain"
)

// OutboxStats is the operator-facing view of the outbox table.
type OutboxStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// OutboxRepository persists outbound events. CreateMessageTx runs inside the
// same transaction as the state change that produced the event.
type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
	GetUnsentMessages(ctx context.Context, querier domain.Querier, maxRetries, limit int) ([]*domain.OutboxMessage, error)
	MarkMessageSent(ctx context.Context, querier domain.Querier, id string) error
	MarkMessageFailed(ctx context.Context, querier domain.Querier, id string, lastError string) error
	ResetForRetry(ctx context.Context, querier domain.Querier, id string) error
	Stats(ctx context.Context, querier domain.Querier) (*OutboxStats, error)
	DeleteSentBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) (int64, error)
}
