package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/order_repo"
)

type pgOrderRepository struct{}

func NewOrderRepository() order_repo.OrderRepository {
	return &pgOrderRepository{}
}

func (r *pgOrderRepository) CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `
		INSERT INTO orders (id, customer_id, delivery_address, items, total_amount, status, reservation_id, payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = querier.ExecContext(ctx, query,
		order.ID,
		order.CustomerID,
		order.DeliveryAddress,
		items,
		order.TotalAmount,
		order.Status,
		order.ReservationID,
		order.PaymentID,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("order %s already exists: %w", order.ID, err)
		}
		return fmt.Errorf("failed to create order %s: %w", order.ID, err)
	}
	return nil
}

func (r *pgOrderRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error) {
	query := `
		SELECT id, customer_id, delivery_address, items, total_amount, status, reservation_id, payment_id, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	order := &domain.Order{}
	var items []byte
	var reservationID, paymentID sql.NullString
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.DeliveryAddress,
		&items,
		&order.TotalAmount,
		&order.Status,
		&reservationID,
		&paymentID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by id %s: %w", id, err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items for order %s: %w", id, err)
		}
	}
	if reservationID.Valid {
		order.ReservationID = &reservationID.String
	}
	if paymentID.Valid {
		order.PaymentID = &paymentID.String
	}
	return order, nil
}

func (r *pgOrderRepository) UpdateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	query := `
		UPDATE orders
		SET total_amount = $2, status = $3, reservation_id = $4, payment_id = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := querier.ExecContext(ctx, query,
		order.ID,
		order.TotalAmount,
		order.Status,
		order.ReservationID,
		order.PaymentID,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
