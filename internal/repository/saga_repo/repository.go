package saga_repo

import (
	"context"
	"time"

	"ordersaga/internal/domain"
)

// SagaRepository persists saga state rows. UpdateTx is a conditional write
// against the version the caller read: on success the in-memory version is
// incremented, on a lost race it returns domain.ErrVersionConflict.
type SagaRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, state *domain.SagaState) error
	GetByOrderIDTx(ctx context.Context, querier domain.Querier, orderID string) (*domain.SagaState, error)
	GetByIdempotencyKeyTx(ctx context.Context, querier domain.Querier, key string) (*domain.SagaState, error)
	UpdateTx(ctx context.Context, querier domain.Querier, state *domain.SagaState) error
	FindStuck(ctx context.Context, querier domain.Querier, olderThan time.Time, limit int) ([]*domain.SagaState, error)
}
