package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/outbox_repo"
)

type pgOutboxRepository struct{}

func NewOutboxRepository() outbox_repo.OutboxRepository {
	return &pgOutboxRepository{}
}

func (r *pgOutboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, topic, key, payload, status, created_at, retry_count, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Topic,
		msg.Key,
		msg.Payload,
		msg.Status,
		msg.CreatedAt,
		msg.RetryCount,
		msg.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message %s: %w", msg.ID, err)
	}
	return nil
}

// GetUnsentMessages selects PENDING rows plus FAILED rows still under the
// retry ceiling, oldest first. SKIP LOCKED keeps overlapping publisher
// instances off the same rows.
func (r *pgOutboxRepository) GetUnsentMessages(ctx context.Context, querier domain.Querier, maxRetries, limit int) ([]*domain.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, topic, key, payload, status, created_at, sent_at, retry_count, last_error
		FROM outbox_messages
		WHERE status = $1 OR (status = $2 AND retry_count < $3)
		ORDER BY created_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	`
	rows, err := querier.QueryContext(ctx, query, domain.OutboxStatusPending, domain.OutboxStatusFailed, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsent outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.OutboxMessage
	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var sentAt sql.NullTime
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Topic,
			&msg.Key,
			&msg.Payload,
			&msg.Status,
			&msg.CreatedAt,
			&sentAt,
			&msg.RetryCount,
			&msg.LastError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message row: %w", err)
		}
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return messages, nil
}

func (r *pgOutboxRepository) MarkMessageSent(ctx context.Context, querier domain.Querier, id string) error {
	query := `UPDATE outbox_messages SET status = $1, sent_at = $2 WHERE id = $3 AND status != $1`
	res, err := querier.ExecContext(ctx, query, domain.OutboxStatusSent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %s as sent: %w", id, err)
	}
	return checkAffected(res, id)
}

func (r *pgOutboxRepository) MarkMessageFailed(ctx context.Context, querier domain.Querier, id string, lastError string) error {
	query := `UPDATE outbox_messages SET status = $1, retry_count = retry_count + 1, last_error = $2 WHERE id = $3`
	res, err := querier.ExecContext(ctx, query, domain.OutboxStatusFailed, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %s as failed: %w", id, err)
	}
	return checkAffected(res, id)
}

// ResetForRetry is the operator escape hatch for a message past the retry
// ceiling: back to PENDING with a fresh retry budget.
func (r *pgOutboxRepository) ResetForRetry(ctx context.Context, querier domain.Querier, id string) error {
	query := `UPDATE outbox_messages SET status = $1, retry_count = 0, last_error = '' WHERE id = $2 AND status = $3`
	res, err := querier.ExecContext(ctx, query, domain.OutboxStatusPending, id, domain.OutboxStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset outbox message %s for retry: %w", id, err)
	}
	return checkAffected(res, id)
}

func (r *pgOutboxRepository) Stats(ctx context.Context, querier domain.Querier) (*outbox_repo.OutboxStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox_messages
	`
	stats := &outbox_repo.OutboxStats{}
	err := querier.QueryRowContext(ctx, query, domain.OutboxStatusPending, domain.OutboxStatusSent, domain.OutboxStatusFailed).
		Scan(&stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox stats: %w", err)
	}
	return stats, nil
}

func (r *pgOutboxRepository) DeleteSentBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outbox_messages WHERE status = $1 AND sent_at < $2`
	res, err := querier.ExecContext(ctx, query, domain.OutboxStatusSent, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sent outbox messages: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check purge result: %w", err)
	}
	return deleted, nil
}

func checkAffected(res sql.Result, id string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrOutboxMessageNotFound)
	}
	return nil
}
