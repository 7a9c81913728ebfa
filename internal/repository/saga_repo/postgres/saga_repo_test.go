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

func sagaRows(state *domain.SagaState) *sqlmock.Rows {
	var completedAt any
	if state.CompletedAt != nil {
		completedAt = *state.CompletedAt
	}
	return sqlmock.NewRows([]string{
		"id", "order_id", "status", "step", "idempotency_key", "card_token",
		"retry_count", "max_retries", "version", "started_at", "completed_at",
		"error_message", "compensation_required", "compensation_done",
	}).AddRow(
		state.ID, state.OrderID, string(state.Status), string(state.Step),
		state.IdempotencyKey, state.CardToken, state.RetryCount, state.MaxRetries,
		state.Version, state.StartedAt, completedAt, state.ErrorMessage,
		state.CompensationRequired, state.CompensationDone,
	)
}

func TestSagaRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO saga_states").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSagaRepository()
	state := domain.NewSagaState("saga-1", "order-1", "idem-1", 3)
	if err := repo.CreateTx(context.Background(), db, state); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
}

func TestSagaRepository_GetByOrderID_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT (.+) FROM saga_states WHERE order_id").
		WithArgs("order-1").
		WillReturnError(sql.ErrNoRows)

	repo := NewSagaRepository()
	_, err := repo.GetByOrderIDTx(context.Background(), db, "order-1")
	if !errors.Is(err, domain.ErrSagaNotFound) {
		t.Fatalf("err = %v, want ErrSagaNotFound", err)
	}
}

func TestSagaRepository_GetByOrderID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	want := domain.NewSagaState("saga-1", "order-1", "idem-1", 3)
	want.Step = domain.StepPaymentRequested
	want.Version = 4

	mock.ExpectQuery("SELECT (.+) FROM saga_states WHERE order_id").
		WithArgs("order-1").
		WillReturnRows(sagaRows(want))

	repo := NewSagaRepository()
	got, err := repo.GetByOrderIDTx(context.Background(), db, "order-1")
	if err != nil {
		t.Fatalf("GetByOrderIDTx: %v", err)
	}
	if got.ID != "saga-1" || got.Step != domain.StepPaymentRequested || got.Version != 4 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Fatalf("expected nil CompletedAt, got %v", got.CompletedAt)
	}
}

func TestSagaRepository_Update_IncrementsVersion(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_states").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSagaRepository()
	state := domain.NewSagaState("saga-1", "order-1", "idem-1", 3)
	state.Version = 2
	if err := repo.UpdateTx(context.Background(), db, state); err != nil {
		t.Fatalf("UpdateTx: %v", err)
	}
	if state.Version != 3 {
		t.Fatalf("version = %d, want 3", state.Version)
	}
}

func TestSagaRepository_Update_VersionConflict(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_states").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewSagaRepository()
	state := domain.NewSagaState("saga-1", "order-1", "idem-1", 3)
	err := repo.UpdateTx(context.Background(), db, state)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if state.Version != 1 {
		t.Fatalf("version changed on conflict: %d", state.Version)
	}
}

func TestSagaRepository_FindStuck(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	first := domain.NewSagaState("saga-1", "order-1", "idem-1", 3)
	second := domain.NewSagaState("saga-2", "order-2", "idem-2", 3)
	rows := sagaRows(first)
	rows.AddRow(
		second.ID, second.OrderID, string(second.Status), string(second.Step),
		second.IdempotencyKey, second.CardToken, second.RetryCount, second.MaxRetries,
		second.Version, second.StartedAt, nil, second.ErrorMessage,
		second.CompensationRequired, second.CompensationDone,
	)

	olderThan := time.Now().Add(-5 * time.Minute)
	mock.ExpectQuery("SELECT (.+) FROM saga_states").
		WithArgs(string(domain.SagaStatusInProgress), olderThan, 50).
		WillReturnRows(rows)

	repo := NewSagaRepository()
	stuck, err := repo.FindStuck(context.Background(), db, olderThan, 50)
	if err != nil {
		t.Fatalf("FindStuck: %v", err)
	}
	if len(stuck) != 2 {
		t.Fatalf("len = %d, want 2", len(stuck))
	}
	if stuck[0].ID != "saga-1" || stuck[1].ID != "saga-2" {
		t.Fatalf("unexpected order: %s, %s", stuck[0].ID, stuck[1].ID)
	}
}
