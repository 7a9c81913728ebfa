package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

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

func TestInboxRepository_CreateMessage(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO inbox_messages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInboxRepository()
	msg := &domain.InboxMessage{
		ID:         "evt-1",
		OrderID:    "order-1",
		Payload:    []byte(`{}`),
		Status:     domain.InboxStatusNew,
		ReceivedAt: time.Now(),
	}
	if err := repo.CreateMessageTx(context.Background(), db, msg); err != nil {
		t.Fatalf("CreateMessageTx: %v", err)
	}
}

func TestInboxRepository_CreateMessage_Duplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO inbox_messages").
		WillReturnError(&pq.Error{Code: "23505"})

	repo := NewInboxRepository()
	msg := &domain.InboxMessage{
		ID:         "evt-1",
		OrderID:    "order-1",
		Payload:    []byte(`{}`),
		Status:     domain.InboxStatusNew,
		ReceivedAt: time.Now(),
	}
	err := repo.CreateMessageTx(context.Background(), db, msg)
	if !errors.Is(err, domain.ErrMessageAlreadyProcessed) {
		t.Fatalf("err = %v, want ErrMessageAlreadyProcessed", err)
	}
}

func TestInboxRepository_UpdateStatus_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE inbox_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewInboxRepository()
	err := repo.UpdateStatusTx(context.Background(), db, "evt-1", domain.InboxStatusCompleted)
	if err == nil {
		t.Fatal("expected error for missing inbox message")
	}
}

func TestInboxRepository_GetMessageByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM inbox_messages").
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "payload", "status", "received_at", "processed_at"}).
			AddRow("evt-1", "order-1", []byte(`{}`), "COMPLETED", now, now))

	repo := NewInboxRepository()
	msg, err := repo.GetMessageByIDTx(context.Background(), db, "evt-1")
	if err != nil {
		t.Fatalf("GetMessageByIDTx: %v", err)
	}
	if msg.ID != "evt-1" || msg.Status != domain.InboxStatusCompleted {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ProcessedAt == nil {
		t.Fatal("expected ProcessedAt to be set")
	}
}

func TestInboxRepository_GetMessageByID_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT (.+) FROM inbox_messages").
		WithArgs("evt-missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewInboxRepository()
	_, err := repo.GetMessageByIDTx(context.Background(), db, "evt-missing")
	if !errors.Is(err, domain.ErrInboxMessageNotFound) {
		t.Fatalf("err = %v, want ErrInboxMessageNotFound", err)
	}
}
