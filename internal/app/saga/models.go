package saga

import (
	"time"

	"ordersaga/internal/domain"
)

type PlaceOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	DeliveryAddress string             `json:"delivery_address"`
	Items           []domain.OrderItem `json:"items"`
	IdempotencyKey  string             `json:"idempotency_key"`
}

type PlaceOrderResponse struct {
	OrderID string `json:"order_id"`
	SagaID  string `json:"saga_id"`
	Status  string `json:"status"`
}

type SagaResponse struct {
	SagaID       string     `json:"saga_id"`
	OrderID      string     `json:"order_id"`
	Status       string     `json:"status"`
	Step         string     `json:"step"`
	RetryCount   int        `json:"retry_count"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type InboxMessageResponse struct {
	EventID     string     `json:"event_id"`
	OrderID     string     `json:"order_id"`
	Status      string     `json:"status"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func mapInboxToResponse(msg *domain.InboxMessage) *InboxMessageResponse {
	return &InboxMessageResponse{
		EventID:     msg.ID,
		OrderID:     msg.OrderID,
		Status:      string(msg.Status),
		ReceivedAt:  msg.ReceivedAt,
		ProcessedAt: msg.ProcessedAt,
	}
}

func mapSagaToResponse(state *domain.SagaState) *SagaResponse {
	return &SagaResponse{
		SagaID:       state.ID,
		OrderID:      state.OrderID,
		Status:       string(state.Status),
		Step:         string(state.Step),
		RetryCount:   state.RetryCount,
		StartedAt:    state.StartedAt,
		CompletedAt:  state.CompletedAt,
		ErrorMessage: state.ErrorMessage,
	}
}
