package saga

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/outbox_repo"
)

// newMockTxDB returns a *sql.DB whose only job is transaction demarcation:
// the repositories below are in-memory fakes that ignore the querier, so
// any begin/commit/rollback sequence is allowed.
func newMockTxDB(t *testing.T) *sql.DB {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 64; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.ReservationID != nil {
		v := *o.ReservationID
		c.ReservationID = &v
	}
	if o.PaymentID != nil {
		v := *o.PaymentID
		c.PaymentID = &v
	}
	return &c
}

func cloneSaga(s *domain.SagaState) *domain.SagaState {
	c := *s
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

type fakeOrderRepo struct {
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*domain.Order{}}
}

func (f *fakeOrderRepo) CreateTx(_ context.Context, _ domain.Querier, order *domain.Order) error {
	f.orders[order.ID] = cloneOrder(order)
	return nil
}

func (f *fakeOrderRepo) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (f *fakeOrderRepo) UpdateTx(_ context.Context, _ domain.Querier, order *domain.Order) error {
	if _, ok := f.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	f.orders[order.ID] = cloneOrder(order)
	return nil
}

type fakeSagaRepo struct {
	byOrder map[string]*domain.SagaState
}

func newFakeSagaRepo() *fakeSagaRepo {
	return &fakeSagaRepo{byOrder: map[string]*domain.SagaState{}}
}

func (f *fakeSagaRepo) CreateTx(_ context.Context, _ domain.Querier, state *domain.SagaState) error {
	if _, ok := f.byOrder[state.OrderID]; ok {
		return domain.ErrSagaAlreadyExists
	}
	for _, existing := range f.byOrder {
		if existing.IdempotencyKey == state.IdempotencyKey {
			return domain.ErrSagaAlreadyExists
		}
	}
	f.byOrder[state.OrderID] = cloneSaga(state)
	return nil
}

func (f *fakeSagaRepo) GetByOrderIDTx(_ context.Context, _ domain.Querier, orderID string) (*domain.SagaState, error) {
	state, ok := f.byOrder[orderID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	return cloneSaga(state), nil
}

func (f *fakeSagaRepo) GetByIdempotencyKeyTx(_ context.Context, _ domain.Querier, key string) (*domain.SagaState, error) {
	for _, state := range f.byOrder {
		if state.IdempotencyKey == key {
			return cloneSaga(state), nil
		}
	}
	return nil, domain.ErrSagaNotFound
}

func (f *fakeSagaRepo) UpdateTx(_ context.Context, _ domain.Querier, state *domain.SagaState) error {
	stored, ok := f.byOrder[state.OrderID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	if stored.Version != state.Version {
		return domain.ErrVersionConflict
	}
	updated := cloneSaga(state)
	updated.Version++
	f.byOrder[state.OrderID] = updated
	state.Version++
	return nil
}

func (f *fakeSagaRepo) FindStuck(_ context.Context, _ domain.Querier, olderThan time.Time, limit int) ([]*domain.SagaState, error) {
	var stuck []*domain.SagaState
	for _, state := range f.byOrder {
		if state.Status == domain.SagaStatusInProgress && state.StartedAt.Before(olderThan) {
			stuck = append(stuck, cloneSaga(state))
		}
		if len(stuck) == limit {
			break
		}
	}
	return stuck, nil
}

type fakeOutboxRepo struct {
	messages []*domain.OutboxMessage
	failFor  map[domain.EventType]error
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{failFor: map[domain.EventType]error{}}
}

func (f *fakeOutboxRepo) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	if err, ok := f.failFor[domain.EventType(msg.EventType)]; ok {
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeOutboxRepo) GetUnsentMessages(_ context.Context, _ domain.Querier, _, _ int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkMessageSent(_ context.Context, _ domain.Querier, _ string) error {
	return nil
}

func (f *fakeOutboxRepo) MarkMessageFailed(_ context.Context, _ domain.Querier, _, _ string) error {
	return nil
}

func (f *fakeOutboxRepo) ResetForRetry(_ context.Context, _ domain.Querier, _ string) error {
	return nil
}

func (f *fakeOutboxRepo) Stats(_ context.Context, _ domain.Querier) (*outbox_repo.OutboxStats, error) {
	stats := &outbox_repo.OutboxStats{}
	for _, msg := range f.messages {
		switch msg.Status {
		case domain.OutboxStatusPending:
			stats.Pending++
		case domain.OutboxStatusSent:
			stats.Sent++
		case domain.OutboxStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (f *fakeOutboxRepo) DeleteSentBefore(_ context.Context, _ domain.Querier, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeOutboxRepo) ofType(eventType domain.EventType) []*domain.OutboxMessage {
	var out []*domain.OutboxMessage
	for _, msg := range f.messages {
		if msg.EventType == string(eventType) {
			out = append(out, msg)
		}
	}
	return out
}

type fakeInboxRepo struct {
	seen map[string]*domain.InboxMessage
}

func newFakeInboxRepo() *fakeInboxRepo {
	return &fakeInboxRepo{seen: map[string]*domain.InboxMessage{}}
}

func (f *fakeInboxRepo) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.InboxMessage) error {
	if _, ok := f.seen[msg.ID]; ok {
		return domain.ErrMessageAlreadyProcessed
	}
	f.seen[msg.ID] = msg
	return nil
}

func (f *fakeInboxRepo) UpdateStatusTx(_ context.Context, _ domain.Querier, id string, status domain.InboxMessageStatus) error {
	msg, ok := f.seen[id]
	if !ok {
		return domain.ErrMessageAlreadyProcessed
	}
	msg.Status = status
	return nil
}

func (f *fakeInboxRepo) GetMessageByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.InboxMessage, error) {
	msg, ok := f.seen[id]
	if !ok {
		return nil, domain.ErrInboxMessageNotFound
	}
	return msg, nil
}
