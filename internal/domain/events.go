package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventPricingRequest        EventType = "pricing.request"
	EventInventoryRequest      EventType = "inventory.request"
	EventCardValidationRequest EventType = "card-validation.request"
	EventPaymentRequest        EventType = "payment.request"
	EventDeliveryRequest       EventType = "delivery.request"
	EventNotification          EventType = "notification"

	EventPricingResponse        EventType = "pricing.response"
	EventInventoryResponse      EventType = "inventory.response"
	EventCardValidationResponse EventType = "card-validation.response"
	EventPaymentResponse        EventType = "payment.response"
	EventDeliveryResponse       EventType = "delivery.response"
)

// Envelope is the common wrapper for every event on the wire: identity and
// routing fields plus a raw payload selected by the Type tag. Consumers
// decode the payload explicitly for the type they expect.
type Envelope struct {
	EventID    string          `json:"event_id"`
	OrderID    string          `json:"order_id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(eventID, orderID string, eventType EventType, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		EventID:    eventID,
		OrderID:    orderID,
		Type:       eventType,
		OccurredAt: time.Now(),
		Payload:    raw,
	}, nil
}

func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Request payloads published through the outbox.

type PricingRequest struct {
	OrderID string      `json:"order_id"`
	Items   []OrderItem `json:"items"`
}

// InventoryRequest doubles as the reserve and the release command;
// Release=true carries the reservation being undone.
type InventoryRequest struct {
	OrderID       string      `json:"order_id"`
	Items         []OrderItem `json:"items,omitempty"`
	Release       bool        `json:"release"`
	ReservationID string      `json:"reservation_id,omitempty"`
}

type CardValidationRequest struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
}

// PaymentRequest doubles as the charge and the refund command;
// Refund=true carries the payment being reversed.
type PaymentRequest struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
	CardToken  string  `json:"card_token,omitempty"`
	Refund     bool    `json:"refund"`
	PaymentID  string  `json:"payment_id,omitempty"`
}

type DeliveryRequest struct {
	OrderID         string `json:"order_id"`
	DeliveryAddress string `json:"delivery_address"`
}

const (
	NotificationOrderConfirmed      = "ORDER_CONFIRMED"
	NotificationOrderFailed         = "ORDER_FAILED"
	NotificationCompensationStarted = "COMPENSATION_STARTED"
)

type Notification struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
}

// Response payloads consumed from downstream services.

type PricingResponse struct {
	Success     bool    `json:"success"`
	TotalAmount float64 `json:"total_amount"`
	Reason      string  `json:"reason,omitempty"`
}

type InventoryResponse struct {
	Reserved      bool   `json:"reserved"`
	ReservationID string `json:"reservation_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type CardValidationResponse struct {
	Valid     bool   `json:"valid"`
	CardToken string `json:"card_token,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type PaymentResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"payment_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type DeliveryResponse struct {
	Success        bool   `json:"success"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
