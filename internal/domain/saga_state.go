package domain

import "time"

type SagaStatus string

const (
	SagaStatusInProgress   SagaStatus = "IN_PROGRESS"
	SagaStatusCompleted    SagaStatus = "COMPLETED"
	SagaStatusFailed       SagaStatus = "FAILED"
	SagaStatusCompensating SagaStatus = "COMPENSATING"
	SagaStatusCompensated  SagaStatus = "COMPENSATED"
)

// IsTerminal reports whether the saga has reached a final status.
// No transition function may move a saga out of a terminal status.
func (s SagaStatus) IsTerminal() bool {
	return s == SagaStatusCompleted || s == SagaStatusFailed || s == SagaStatusCompensated
}

type SagaStep string

const (
	StepPricingRequested        SagaStep = "PRICING_REQUESTED"
	StepInventoryRequested      SagaStep = "INVENTORY_REQUESTED"
	StepCardValidationRequested SagaStep = "CARD_VALIDATION_REQUESTED"
	StepPaymentRequested        SagaStep = "PAYMENT_REQUESTED"
	StepDeliveryRequested       SagaStep = "DELIVERY_REQUESTED"
	StepDone                    SagaStep = "DONE"
)

// SagaState is the durable record of one order saga. Exactly one
// non-terminal row may exist per order id. Rows are never deleted;
// terminal rows remain as an audit trail.
//
// Version is an optimistic-concurrency counter: every update is a
// conditional write against the version read, so a duplicate inbound
// message and a timeout-driven retry cannot both apply a transition.
type SagaState struct {
	ID                   string
	OrderID              string
	Status               SagaStatus
	Step                 SagaStep
	IdempotencyKey       string
	CardToken            string
	RetryCount           int
	MaxRetries           int
	Version              int
	StartedAt            time.Time
	CompletedAt          *time.Time
	ErrorMessage         string
	CompensationRequired bool
	CompensationDone     bool
}

func NewSagaState(id, orderID, idempotencyKey string, maxRetries int) *SagaState {
	return &SagaState{
		ID:             id,
		OrderID:        orderID,
		Status:         SagaStatusInProgress,
		Step:           StepPricingRequested,
		IdempotencyKey: idempotencyKey,
		MaxRetries:     maxRetries,
		Version:        1,
		StartedAt:      time.Now(),
	}
}

func (s *SagaState) Advance(step SagaStep) error {
	if s.Status.IsTerminal() {
		return ErrSagaTerminal
	}
	s.Step = step
	return nil
}

func (s *SagaState) Complete() error {
	if s.Status.IsTerminal() {
		return ErrSagaTerminal
	}
	now := time.Now()
	s.Status = SagaStatusCompleted
	s.CompletedAt = &now
	return nil
}

func (s *SagaState) Fail(reason string) error {
	if s.Status.IsTerminal() {
		return ErrSagaTerminal
	}
	now := time.Now()
	s.Status = SagaStatusFailed
	s.CompletedAt = &now
	s.ErrorMessage = reason
	return nil
}

func (s *SagaState) BeginCompensation(reason string) error {
	if s.Status.IsTerminal() {
		return ErrSagaTerminal
	}
	s.Status = SagaStatusCompensating
	s.ErrorMessage = reason
	s.CompensationRequired = true
	return nil
}

func (s *SagaState) FinishCompensation() error {
	if s.Status.IsTerminal() {
		return ErrSagaTerminal
	}
	now := time.Now()
	s.Status = SagaStatusCompensated
	s.CompletedAt = &now
	s.CompensationDone = true
	return nil
}
