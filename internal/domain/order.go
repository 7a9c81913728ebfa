package domain

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// IsTerminal reports whether no further status transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusFailed || s == OrderStatusCanceled
}

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is the aggregate driven through the saga. ReservationID and
// PaymentID track acquired downstream resources so compensation knows
// what to undo.
type Order struct {
	ID              string
	CustomerID      string
	DeliveryAddress string
	Items           []OrderItem
	TotalAmount     float64
	Status          OrderStatus
	ReservationID   *string
	PaymentID       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewOrder(id, customerID, deliveryAddress string, items []OrderItem) (*Order, error) {
	if id == "" || customerID == "" || len(items) == 0 {
		return nil, errors.New("invalid order data")
	}
	now := time.Now()
	return &Order{
		ID:              id,
		CustomerID:      customerID,
		DeliveryAddress: deliveryAddress,
		Items:           items,
		Status:          OrderStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (o *Order) SetTotalAmount(amount float64) {
	o.TotalAmount = amount
	o.UpdatedAt = time.Now()
}

func (o *Order) SetReservation(reservationID string) {
	o.ReservationID = &reservationID
	o.UpdatedAt = time.Now()
}

func (o *Order) SetPayment(paymentID string) {
	o.PaymentID = &paymentID
	o.UpdatedAt = time.Now()
}

func (o *Order) MarkAsPaid() error {
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	if o.Status != OrderStatusCreated {
		return errors.New("order must be CREATED to become PAID")
	}
	o.Status = OrderStatusPaid
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) MarkAsDelivered() error {
	if o.Status != OrderStatusPaid {
		return errors.New("order must be PAID to become DELIVERED")
	}
	o.Status = OrderStatusDelivered
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) MarkAsFailed() error {
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Status = OrderStatusFailed
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) MarkAsCanceled() error {
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Status = OrderStatusCanceled
	o.UpdatedAt = time.Now()
	return nil
}
