package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/inbox_repo"
)

type pgInboxRepository struct{}

func NewInboxRepository() inbox_repo.InboxRepository {
	return &pgInboxRepository{}
}

func (r *pgInboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, order_id, payload, status, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var processedAt sql.NullTime
	if msg.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *msg.ProcessedAt, Valid: true}
	}

	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.OrderID,
		msg.Payload,
		msg.Status,
		msg.ReceivedAt,
		processedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrMessageAlreadyProcessed
		}
		return fmt.Errorf("failed to create inbox message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *pgInboxRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, processed_at = CASE WHEN $1::VARCHAR = 'COMPLETED' THEN $2 ELSE processed_at END
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	return nil
}

func (r *pgInboxRepository) GetMessageByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.InboxMessage, error) {
	query := `
		SELECT id, order_id, payload, status, received_at, processed_at
		FROM inbox_messages
		WHERE id = $1
	`
	msg := &domain.InboxMessage{}
	var processedAt sql.NullTime
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.OrderID,
		&msg.Payload,
		&msg.Status,
		&msg.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInboxMessageNotFound
		}
		return nil, fmt.Errorf("failed to get inbox message by id %s: %w", id, err)
	}
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	return msg, nil
}
