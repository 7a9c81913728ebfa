package order_repo

import (
	"context"

	"ordersaga/internal/domain"
)

// OrderRepository persists the Order aggregate. All methods accept a
// Querier so the orchestrator can run them inside its own transaction.
type OrderRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error)
	UpdateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
}
