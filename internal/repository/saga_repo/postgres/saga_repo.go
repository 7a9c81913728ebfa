package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/saga_repo"
)

const sagaColumns = `id, order_id, status, step, idempotency_key, card_token, retry_count, max_retries, version, started_at, completed_at, error_message, compensation_required, compensation_done`

type pgSagaRepository struct{}

func NewSagaRepository() saga_repo.SagaRepository {
	return &pgSagaRepository{}
}

func (r *pgSagaRepository) CreateTx(ctx context.Context, querier domain.Querier, state *domain.SagaState) error {
	query := `
		INSERT INTO saga_states (` + sagaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := querier.ExecContext(ctx, query,
		state.ID,
		state.OrderID,
		state.Status,
		state.Step,
		state.IdempotencyKey,
		state.CardToken,
		state.RetryCount,
		state.MaxRetries,
		state.Version,
		state.StartedAt,
		nullTime(state.CompletedAt),
		state.ErrorMessage,
		state.CompensationRequired,
		state.CompensationDone,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrSagaAlreadyExists
		}
		return fmt.Errorf("failed to create saga state for order %s: %w", state.OrderID, err)
	}
	return nil
}

func (r *pgSagaRepository) GetByOrderIDTx(ctx context.Context, querier domain.Querier, orderID string) (*domain.SagaState, error) {
	query := `SELECT ` + sagaColumns + ` FROM saga_states WHERE order_id = $1`
	return r.scanOne(querier.QueryRowContext(ctx, query, orderID))
}

func (r *pgSagaRepository) GetByIdempotencyKeyTx(ctx context.Context, querier domain.Querier, key string) (*domain.SagaState, error) {
	query := `SELECT ` + sagaColumns + ` FROM saga_states WHERE idempotency_key = $1`
	return r.scanOne(querier.QueryRowContext(ctx, query, key))
}

// UpdateTx writes the full row guarded by the version the caller read.
// Zero rows affected means another writer got there first.
func (r *pgSagaRepository) UpdateTx(ctx context.Context, querier domain.Querier, state *domain.SagaState) error {
	query := `
		UPDATE saga_states
		SET status = $2, step = $3, card_token = $4, retry_count = $5, completed_at = $6,
		    error_message = $7, compensation_required = $8, compensation_done = $9, version = version + 1
		WHERE id = $1 AND version = $10
	`
	res, err := querier.ExecContext(ctx, query,
		state.ID,
		state.Status,
		state.Step,
		state.CardToken,
		state.RetryCount,
		nullTime(state.CompletedAt),
		state.ErrorMessage,
		state.CompensationRequired,
		state.CompensationDone,
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga state %s: %w", state.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	state.Version++
	return nil
}

func (r *pgSagaRepository) FindStuck(ctx context.Context, querier domain.Querier, olderThan time.Time, limit int) ([]*domain.SagaState, error) {
	query := `
		SELECT ` + sagaColumns + `
		FROM saga_states
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at ASC
		LIMIT $3
	`
	rows, err := querier.QueryContext(ctx, query, domain.SagaStatusInProgress, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sagas: %w", err)
	}
	defer rows.Close()

	var states []*domain.SagaState
	for rows.Next() {
		state, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return states, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *pgSagaRepository) scanOne(row *sql.Row) (*domain.SagaState, error) {
	state, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, err
	}
	return state, nil
}

func (r *pgSagaRepository) scanRow(row rowScanner) (*domain.SagaState, error) {
	state := &domain.SagaState{}
	var completedAt sql.NullTime
	err := row.Scan(
		&state.ID,
		&state.OrderID,
		&state.Status,
		&state.Step,
		&state.IdempotencyKey,
		&state.CardToken,
		&state.RetryCount,
		&state.MaxRetries,
		&state.Version,
		&state.StartedAt,
		&completedAt,
		&state.ErrorMessage,
		&state.CompensationRequired,
		&state.CompensationDone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan saga state row: %w", err)
	}
	if completedAt.Valid {
		state.CompletedAt = &completedAt.Time
	}
	return state, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
