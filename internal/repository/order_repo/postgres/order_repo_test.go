package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"ordersaga/internal/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		mock.ExpectClose()
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func testOrder(t *testing.T) *domain.Order {
	t.Helper()

	order, err := domain.NewOrder("order-1", "cust-1", "1 Main St", []domain.OrderItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: 50},
	})
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	return order
}

func TestOrderRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewOrderRepository()
	if err := repo.CreateTx(context.Background(), db, testOrder(t)); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("order-1").
		WillReturnError(sql.ErrNoRows)

	repo := NewOrderRepository()
	_, err := repo.GetByIDTx(context.Background(), db, "order-1")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderRepository_GetByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "customer_id", "delivery_address", "items", "total_amount",
			"status", "reservation_id", "payment_id", "created_at", "updated_at",
		}).AddRow(
			"order-1", "cust-1", "1 Main St", []byte(`[{"product_id":"p-1","quantity":2,"unit_price":50}]`),
			100.0, "PAID", "res-1", nil, now, now,
		))

	repo := NewOrderRepository()
	order, err := repo.GetByIDTx(context.Background(), db, "order-1")
	if err != nil {
		t.Fatalf("GetByIDTx: %v", err)
	}
	if order.Status != domain.OrderStatusPaid || order.TotalAmount != 100.0 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != "p-1" {
		t.Fatalf("items not decoded: %+v", order.Items)
	}
	if order.ReservationID == nil || *order.ReservationID != "res-1" {
		t.Fatal("reservation id not mapped")
	}
	if order.PaymentID != nil {
		t.Fatal("null payment id must map to nil")
	}
}

func TestOrderRepository_Update_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewOrderRepository()
	err := repo.UpdateTx(context.Background(), db, testOrder(t))
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}
