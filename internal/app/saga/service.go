package saga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/inbox_repo"
	"ordersaga/internal/repository/order_repo"
	"ordersaga/internal/repository/outbox_repo"
	"ordersaga/internal/repository/saga_repo"
	"ordersaga/internal/util"
)

// errSkipMessage signals that the current unit of work should roll back and
// the triggering message be acknowledged without error: duplicates, stale
// events, events for unknown or already-terminal sagas.
var errSkipMessage = errors.New("skip message")

// Topics holds the destination channel for every outbound event kind.
type Topics struct {
	PricingRequest        string
	InventoryRequest      string
	CardValidationRequest string
	PaymentRequest        string
	DeliveryRequest       string
	Notifications         string
}

type SagaService interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error)
	StartSaga(ctx context.Context, orderID, idempotencyKey string) error

	HandlePricingResponse(ctx context.Context, env *domain.Envelope) error
	HandleInventoryResponse(ctx context.Context, env *domain.Envelope) error
	HandleCardValidationResponse(ctx context.Context, env *domain.Envelope) error
	HandlePaymentResponse(ctx context.Context, env *domain.Envelope) error
	HandleDeliveryResponse(ctx context.Context, env *domain.Envelope) error

	RecoverSaga(ctx context.Context, state *domain.SagaState) error

	GetSagaByOrderID(ctx context.Context, orderID string) (*SagaResponse, error)
	GetInboxMessage(ctx context.Context, eventID string) (*InboxMessageResponse, error)
	OutboxStats(ctx context.Context) (*outbox_repo.OutboxStats, error)
	RetryOutboxMessage(ctx context.Context, id string) error
}

type sagaService struct {
	db         *sql.DB
	orderRepo  order_repo.OrderRepository
	sagaRepo   saga_repo.SagaRepository
	outboxRepo outbox_repo.OutboxRepository
	inboxRepo  inbox_repo.InboxRepository
	topics     Topics
	maxRetries int
	logger     *zap.Logger
}

func NewSagaService(
	db *sql.DB,
	orderRepo order_repo.OrderRepository,
	sagaRepo saga_repo.SagaRepository,
	outboxRepo outbox_repo.OutboxRepository,
	inboxRepo inbox_repo.InboxRepository,
	topics Topics,
	maxRetries int,
	logger *zap.Logger,
) SagaService {
	return &sagaService{
		db:         db,
		orderRepo:  orderRepo,
		sagaRepo:   sagaRepo,
		outboxRepo: outboxRepo,
		inboxRepo:  inboxRepo,
		topics:     topics,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (s *sagaService) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		if errors.Is(err, errSkipMessage) {
			return nil
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// appendOutboxTx wraps the payload into an envelope and stores it as a
// PENDING outbox row inside the caller's transaction. The order id doubles
// as aggregate id and Kafka key.
func (s *sagaService) appendOutboxTx(ctx context.Context, tx *sql.Tx, orderID string, eventType domain.EventType, topic string, payload any) error {
	env, err := domain.NewEnvelope(util.GenerateUUID(), orderID, eventType, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", eventType, err)
	}
	msg := &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     string(eventType),
		Topic:         topic,
		Key:           orderID,
		Payload:       raw,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     time.Now(),
	}
	return s.outboxRepo.CreateMessageTx(ctx, tx, msg)
}

func (s *sagaService) notifyTx(ctx context.Context, tx *sql.Tx, order *domain.Order, kind, reason string) error {
	return s.appendOutboxTx(ctx, tx, order.ID, domain.EventNotification, s.topics.Notifications, &domain.Notification{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Kind:       kind,
		Reason:     reason,
	})
}

// stepRequestTx emits the outbound request for the saga's current step.
// Used on the happy path and by timeout-driven re-emission, so downstream
// services may see the same request twice; their inbox guards absorb it.
func (s *sagaService) stepRequestTx(ctx context.Context, tx *sql.Tx, state *domain.SagaState, order *domain.Order) error {
	switch state.Step {
	case domain.StepPricingRequested:
		return s.appendOutboxTx(ctx, tx, order.ID, domain.EventPricingRequest, s.topics.PricingRequest, &domain.PricingRequest{
			OrderID: order.ID,
			Items:   order.Items,
		})
	case domain.StepInventoryRequested:
		return s.appendOutboxTx(ctx, tx, order.ID, domain.EventInventoryRequest, s.topics.InventoryRequest, &domain.InventoryRequest{
			OrderID: order.ID,
			Items:   order.Items,
		})
	case domain.StepCardValidationRequested:
		return s.appendOutboxTx(ctx, tx, order.ID, domain.EventCardValidationRequest, s.topics.CardValidationRequest, &domain.CardValidationRequest{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Amount:     order.TotalAmount,
		})
	case domain.StepPaymentRequested:
		return s.appendOutboxTx(ctx, tx, order.ID, domain.EventPaymentRequest, s.topics.PaymentRequest, &domain.PaymentRequest{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Amount:     order.TotalAmount,
			CardToken:  state.CardToken,
		})
	case domain.StepDeliveryRequested:
		return s.appendOutboxTx(ctx, tx, order.ID, domain.EventDeliveryRequest, s.topics.DeliveryRequest, &domain.DeliveryRequest{
			OrderID:         order.ID,
			DeliveryAddress: order.DeliveryAddress,
		})
	default:
		return fmt.Errorf("no outbound request for saga step %s", state.Step)
	}
}

func (s *sagaService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, errors.New("idempotency key is required")
	}

	existing, err := s.sagaRepo.GetByIdempotencyKeyTx(ctx, s.db, req.IdempotencyKey)
	if err != nil && !errors.Is(err, domain.ErrSagaNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate order placement, returning existing saga",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("order_id", existing.OrderID))
		return &PlaceOrderResponse{OrderID: existing.OrderID, SagaID: existing.ID, Status: string(existing.Status)}, nil
	}

	order, err := domain.NewOrder(util.GenerateUUID(), req.CustomerID, req.DeliveryAddress, req.Items)
	if err != nil {
		return nil, err
	}

	var state *domain.SagaState
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		if err := s.orderRepo.CreateTx(ctx, tx, order); err != nil {
			return err
		}
		state, err = s.startSagaTx(ctx, tx, order, req.IdempotencyKey)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrSagaAlreadyExists) {
			// Lost a race with an identical request; the winner's saga serves both.
			winner, getErr := s.sagaRepo.GetByIdempotencyKeyTx(ctx, s.db, req.IdempotencyKey)
			if getErr == nil {
				return &PlaceOrderResponse{OrderID: winner.OrderID, SagaID: winner.ID, Status: string(winner.Status)}, nil
			}
		}
		s.logger.Error("Failed to place order", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Order placed and saga started",
		zap.String("order_id", order.ID),
		zap.String("saga_id", state.ID))
	return &PlaceOrderResponse{OrderID: order.ID, SagaID: state.ID, Status: string(state.Status)}, nil
}

// StartSaga is idempotent: a second call for the same order id (or the same
// idempotency key) returns without re-issuing the pricing request.
func (s *sagaService) StartSaga(ctx context.Context, orderID, idempotencyKey string) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orderRepo.GetByIDTx(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				s.logger.Warn("StartSaga for unknown order, skipping", zap.String("order_id", orderID))
				return errSkipMessage
			}
			return err
		}

		if _, err := s.sagaRepo.GetByOrderIDTx(ctx, tx, orderID); err == nil {
			s.logger.Info("Saga already exists for order, skipping start", zap.String("order_id", orderID))
			return errSkipMessage
		} else if !errors.Is(err, domain.ErrSagaNotFound) {
			return err
		}

		_, err = s.startSagaTx(ctx, tx, order, idempotencyKey)
		if errors.Is(err, domain.ErrSagaAlreadyExists) {
			return errSkipMessage
		}
		return err
	})
}

func (s *sagaService) startSagaTx(ctx context.Context, tx *sql.Tx, order *domain.Order, idempotencyKey string) (*domain.SagaState, error) {
	state := domain.NewSagaState(util.GenerateUUID(), order.ID, idempotencyKey, s.maxRetries)
	if err := s.sagaRepo.CreateTx(ctx, tx, state); err != nil {
		return nil, err
	}
	if err := s.stepRequestTx(ctx, tx, state, order); err != nil {
		return nil, err
	}
	return state, nil
}

// RecoverSaga re-drives a saga the timeout monitor found stuck: while retries
// remain it re-emits the current step's request with the retry counter
// incremented; once exhausted it switches the saga to compensation. The
// version-guarded saga update is the claim that keeps overlapping monitor
// runs from both acting on the same row.
func (s *sagaService) RecoverSaga(ctx context.Context, stale *domain.SagaState) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		state, err := s.sagaRepo.GetByOrderIDTx(ctx, tx, stale.OrderID)
		if err != nil {
			return err
		}
		if state.Status != domain.SagaStatusInProgress {
			return errSkipMessage
		}

		order, err := s.orderRepo.GetByIDTx(ctx, tx, state.OrderID)
		if err != nil {
			return err
		}

		if state.RetryCount >= state.MaxRetries {
			s.logger.Warn("Saga retries exhausted, starting compensation",
				zap.String("saga_id", state.ID),
				zap.String("order_id", state.OrderID),
				zap.Int("retry_count", state.RetryCount))
			err := s.compensateSagaTx(ctx, tx, state, order,
				fmt.Sprintf("saga timed out at step %s after %d retries", state.Step, state.RetryCount))
			if errors.Is(err, domain.ErrVersionConflict) {
				return errSkipMessage
			}
			return err
		}

		state.RetryCount++
		if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				s.logger.Debug("Saga retry claim lost to concurrent writer",
					zap.String("saga_id", state.ID))
				return errSkipMessage
			}
			return err
		}
		if err := s.stepRequestTx(ctx, tx, state, order); err != nil {
			return err
		}

		s.logger.Info("Re-emitted request for stuck saga",
			zap.String("saga_id", state.ID),
			zap.String("order_id", state.OrderID),
			zap.String("step", string(state.Step)),
			zap.Int("retry_count", state.RetryCount))
		return nil
	})
}

func (s *sagaService) GetSagaByOrderID(ctx context.Context, orderID string) (*SagaResponse, error) {
	state, err := s.sagaRepo.GetByOrderIDTx(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	return mapSagaToResponse(state), nil
}

func (s *sagaService) GetInboxMessage(ctx context.Context, eventID string) (*InboxMessageResponse, error) {
	msg, err := s.inboxRepo.GetMessageByIDTx(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	return mapInboxToResponse(msg), nil
}

func (s *sagaService) OutboxStats(ctx context.Context) (*outbox_repo.OutboxStats, error) {
	return s.outboxRepo.Stats(ctx, s.db)
}

func (s *sagaService) RetryOutboxMessage(ctx context.Context, id string) error {
	return s.outboxRepo.ResetForRetry(ctx, s.db, id)
}
