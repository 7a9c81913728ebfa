package inbox_repo

import (
	"context"

	"ordersaga/internal/domain"
)

// InboxRepository deduplicates inbound events. CreateMessageTx records the
// event id before any business effect is applied; a duplicate id returns
// domain.ErrMessageAlreadyProcessed and the caller acknowledges without
// re-executing side effects.
type InboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error
	GetMessageByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.InboxMessage, error)
}
