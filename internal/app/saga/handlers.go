package saga

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"ordersaga/internal/domain"
)

// handleResponse is the unit of work shared by every inbound response:
// begin, record the event id in the inbox (duplicates ack as success),
// load saga and order, apply the transition, mark the inbox row processed,
// commit. Any hard failure rolls the whole unit back and the broker
// redelivers the message.
func (s *sagaService) handleResponse(
	ctx context.Context,
	env *domain.Envelope,
	expectedStep domain.SagaStep,
	apply func(tx *sql.Tx, state *domain.SagaState, order *domain.Order) error,
) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		inboxMsg := &domain.InboxMessage{
			ID:         env.EventID,
			OrderID:    env.OrderID,
			Payload:    env.Payload,
			Status:     domain.InboxStatusNew,
			ReceivedAt: time.Now(),
		}
		if err := s.inboxRepo.CreateMessageTx(ctx, tx, inboxMsg); err != nil {
			if errors.Is(err, domain.ErrMessageAlreadyProcessed) {
				s.logger.Info("Duplicate inbound event, acknowledging without effect",
					zap.String("event_id", env.EventID),
					zap.String("order_id", env.OrderID),
					zap.String("type", string(env.Type)))
				return errSkipMessage
			}
			return err
		}

		state, err := s.sagaRepo.GetByOrderIDTx(ctx, tx, env.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrSagaNotFound) {
				s.logger.Warn("Response event for unknown saga, skipping",
					zap.String("event_id", env.EventID),
					zap.String("order_id", env.OrderID))
				return errSkipMessage
			}
			return err
		}
		if state.Status.IsTerminal() {
			s.logger.Info("Response event for terminal saga, skipping",
				zap.String("event_id", env.EventID),
				zap.String("order_id", env.OrderID),
				zap.String("saga_status", string(state.Status)))
			return errSkipMessage
		}
		if expectedStep != "" && state.Step != expectedStep {
			s.logger.Warn("Response event does not match current saga step, skipping",
				zap.String("event_id", env.EventID),
				zap.String("order_id", env.OrderID),
				zap.String("saga_step", string(state.Step)),
				zap.String("expected_step", string(expectedStep)))
			return errSkipMessage
		}

		order, err := s.orderRepo.GetByIDTx(ctx, tx, env.OrderID)
		if err != nil {
			return err
		}

		if err := apply(tx, state, order); err != nil {
			return err
		}

		return s.inboxRepo.UpdateStatusTx(ctx, tx, env.EventID, domain.InboxStatusCompleted)
	})
}

func (s *sagaService) HandlePricingResponse(ctx context.Context, env *domain.Envelope) error {
	var resp domain.PricingResponse
	if err := env.DecodePayload(&resp); err != nil {
		s.logger.Error("Malformed pricing response, dropping", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	return s.handleResponse(ctx, env, domain.StepPricingRequested, func(tx *sql.Tx, state *domain.SagaState, order *domain.Order) error {
		if !resp.Success {
			// Nothing has been committed downstream yet, so no compensation.
			return s.failSagaTx(ctx, tx, state, order, "pricing failed: "+resp.Reason)
		}

		order.SetTotalAmount(resp.TotalAmount)
		if err := s.orderRepo.UpdateTx(ctx, tx, order); err != nil {
			return err
		}
		if err := state.Advance(domain.StepInventoryRequested); err != nil {
			return err
		}
		if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
			return err
		}
		return s.stepRequestTx(ctx, tx, state, order)
	})
}

func (s *sagaService) HandleInventoryResponse(ctx context.Context, env *domain.Envelope) error {
	var resp domain.InventoryResponse
	if err := env.DecodePayload(&resp); err != nil {
		s.logger.Error("Malformed inventory response, dropping", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	return s.handleResponse(ctx, env, domain.StepInventoryRequested, func(tx *sql.Tx, state *domain.SagaState, order *domain.Order) error {
		if !resp.Reserved {
			return s.compensateSagaTx(ctx, tx, state, order, "inventory reservation failed: "+resp.Reason)
		}

		order.SetReservation(resp.ReservationID)
		if err := s.orderRepo.UpdateTx(ctx, tx, order); err != nil {
			return err
		}
		if err := state.Advance(domain.StepCardValidationRequested); err != nil {
			return err
		}
		if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
			return err
		}
		return s.stepRequestTx(ctx, tx, state, order)
	})
}

func (s *sagaService) HandleCardValidationResponse(ctx context.Context, env *domain.Envelope) error {
	var resp domain.CardValidationResponse
	if err := env.DecodePayload(&resp); err != nil {
		s.logger.Error("Malformed card validation response, dropping", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	return s.handleResponse(ctx, env, domain.StepCardValidationRequested, func(tx *sql.Tx, state *domain.SagaState, order *domain.Order) error {
		if !resp.Valid {
			return s.compensateSagaTx(ctx, tx, state, order, "card validation failed: "+resp.Reason)
		}

		// The token must survive on the saga row so a timeout-driven retry
		// of the payment step can re-emit it.
		state.CardToken = resp.CardToken
		if err := state.Advance(domain.StepPaymentRequested); err != nil {
			return err
		}
		if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
			return err
		}
		return s.stepRequestTx(ctx, tx, state, order)
	})
}

func (s *sagaService) HandlePaymentResponse(ctx context.Context, env *domain.Envelope) error {
	var resp domain.PaymentResponse
	if err := env.DecodePayload(&resp); err != nil {
		s.logger.Error("Malformed payment response, dropping", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	return s.handleResponse(ctx, env, domain.StepPaymentRequested, func(tx *sql.Tx, state *domain.SagaState, order *domain.Order) error {
		if !resp.Success {
			return s.compensateSagaTx(ctx, tx, state, order, "payment failed: "+resp.Reason)
		}

		order.SetPayment(resp.PaymentID)
		if err := order.MarkAsPaid(); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateTx(ctx, tx, order); err != nil {
			return err
		}

		// Delivery and notification are fire-and-forget; the saga is
		// logically complete once payment succeeds.
		if err := state.Advance(domain.StepDeliveryRequested); err != nil {
			return err
		}
		if err := s.stepRequestTx(ctx, tx, state, order); err != nil {
			return err
		}
		if err := s.notifyTx(ctx, tx, order, domain.NotificationOrderConfirmed, ""); err != nil {
			return err
		}
		return s.completeSagaTx(ctx, tx, state)
	})
}

// HandleDeliveryResponse is a tracking update, not a saga gate: the saga is
// already COMPLETED when it arrives, so only the order status and the step
// marker move. A delivery failure never triggers compensation.
func (s *sagaService) HandleDeliveryResponse(ctx context.Context, env *domain.Envelope) error {
	var resp domain.DeliveryResponse
	if err := env.DecodePayload(&resp); err != nil {
		s.logger.Error("Malformed delivery response, dropping", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	return s.runInTx(ctx, func(tx *sql.Tx) error {
		inboxMsg := &domain.InboxMessage{
			ID:         env.EventID,
			OrderID:    env.OrderID,
			Payload:    env.Payload,
			Status:     domain.InboxStatusNew,
			ReceivedAt: time.Now(),
		}
		if err := s.inboxRepo.CreateMessageTx(ctx, tx, inboxMsg); err != nil {
			if errors.Is(err, domain.ErrMessageAlreadyProcessed) {
				return errSkipMessage
			}
			return err
		}

		state, err := s.sagaRepo.GetByOrderIDTx(ctx, tx, env.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrSagaNotFound) {
				s.logger.Warn("Delivery response for unknown saga, skipping", zap.String("order_id", env.OrderID))
				return errSkipMessage
			}
			return err
		}
		if state.Step != domain.StepDeliveryRequested {
			s.logger.Warn("Delivery response outside delivery step, skipping",
				zap.String("order_id", env.OrderID),
				zap.String("saga_step", string(state.Step)))
			return errSkipMessage
		}

		if !resp.Success {
			s.logger.Warn("Delivery creation failed downstream; saga stays completed",
				zap.String("order_id", env.OrderID),
				zap.String("reason", resp.Reason))
			return s.inboxRepo.UpdateStatusTx(ctx, tx, env.EventID, domain.InboxStatusCompleted)
		}

		order, err := s.orderRepo.GetByIDTx(ctx, tx, env.OrderID)
		if err != nil {
			return err
		}
		if err := order.MarkAsDelivered(); err != nil {
			s.logger.Warn("Cannot mark order delivered", zap.String("order_id", order.ID), zap.Error(err))
			return errSkipMessage
		}
		if err := s.orderRepo.UpdateTx(ctx, tx, order); err != nil {
			return err
		}

		// Status is already terminal; only the step marker moves.
		state.Step = domain.StepDone
		if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
			return err
		}

		s.logger.Info("Order delivered",
			zap.String("order_id", order.ID),
			zap.String("tracking_number", resp.TrackingNumber))
		return s.inboxRepo.UpdateStatusTx(ctx, tx, env.EventID, domain.InboxStatusCompleted)
	})
}

func (s *sagaService) completeSagaTx(ctx context.Context, tx *sql.Tx, state *domain.SagaState) error {
	if err := state.Complete(); err != nil {
		return err
	}
	if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
		return err
	}
	s.logger.Info("Saga completed",
		zap.String("saga_id", state.ID),
		zap.String("order_id", state.OrderID))
	return nil
}

// failSagaTx ends the saga without compensation. Only valid while nothing
// has been committed downstream (pricing rejection).
func (s *sagaService) failSagaTx(ctx context.Context, tx *sql.Tx, state *domain.SagaState, order *domain.Order, reason string) error {
	if err := state.Fail(reason); err != nil {
		return err
	}
	if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
		return err
	}
	if err := order.MarkAsFailed(); err != nil {
		return err
	}
	if err := s.orderRepo.UpdateTx(ctx, tx, order); err != nil {
		return err
	}
	if err := s.notifyTx(ctx, tx, order, domain.NotificationOrderFailed, reason); err != nil {
		return err
	}
	s.logger.Warn("Saga failed",
		zap.String("saga_id", state.ID),
		zap.String("order_id", state.OrderID),
		zap.String("reason", reason))
	return nil
}

// compensateSagaTx undoes committed side effects in strict reverse order of
// acquisition: refund the payment if one exists, then release the inventory
// reservation if one exists, then mark the order failed and the saga
// compensated. Everything rides the caller's transaction; if any of the
// compensation events cannot be appended the whole unit rolls back and the
// triggering message is redelivered.
func (s *sagaService) compensateSagaTx(ctx context.Context, tx *sql.Tx, state *domain.SagaState, order *domain.Order, reason string) error {
	if err := state.BeginCompensation(reason); err != nil {
		return err
	}
	if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
		return err
	}

	if err := s.compensationEventsTx(ctx, tx, state, order, reason); err != nil {
		// Money or stock may stay held with nothing driving resolution;
		// this must reach an operator, not just a retry loop.
		s.logger.Error("Compensation event append failed, rolling back unit of work",
			zap.String("alert", "compensation_failure"),
			zap.String("saga_id", state.ID),
			zap.String("order_id", state.OrderID),
			zap.Error(err))
		return err
	}

	if err := order.MarkAsFailed(); err != nil {
		return err
	}
	if err := s.orderRepo.UpdateTx(ctx, tx, order); err != nil {
		return err
	}
	if err := state.FinishCompensation(); err != nil {
		return err
	}
	if err := s.sagaRepo.UpdateTx(ctx, tx, state); err != nil {
		return err
	}

	s.logger.Warn("Saga compensated",
		zap.String("saga_id", state.ID),
		zap.String("order_id", state.OrderID),
		zap.String("reason", reason))
	return nil
}

func (s *sagaService) compensationEventsTx(ctx context.Context, tx *sql.Tx, state *domain.SagaState, order *domain.Order, reason string) error {
	if err := s.notifyTx(ctx, tx, order, domain.NotificationCompensationStarted, reason); err != nil {
		return err
	}

	if order.PaymentID != nil {
		err := s.appendOutboxTx(ctx, tx, order.ID, domain.EventPaymentRequest, s.topics.PaymentRequest, &domain.PaymentRequest{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Amount:     order.TotalAmount,
			Refund:     true,
			PaymentID:  *order.PaymentID,
		})
		if err != nil {
			return err
		}
	}

	if order.ReservationID != nil {
		err := s.appendOutboxTx(ctx, tx, order.ID, domain.EventInventoryRequest, s.topics.InventoryRequest, &domain.InventoryRequest{
			OrderID:       order.ID,
			Release:       true,
			ReservationID: *order.ReservationID,
		})
		if err != nil {
			return err
		}
	}

	return s.notifyTx(ctx, tx, order, domain.NotificationOrderFailed, reason)
}
