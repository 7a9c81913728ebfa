package domain

import "time"

type InboxMessageStatus string

const (
	InboxStatusNew       InboxMessageStatus = "NEW"
	InboxStatusCompleted InboxMessageStatus = "COMPLETED"
	InboxStatusFailed    InboxMessageStatus = "FAILED"
)

// InboxMessage records a consumed event id for deduplication. The id is
// assigned by the producer and is the primary key, so a second delivery
// of the same event fails the insert and is treated as already seen.
type InboxMessage struct {
	ID          string
	OrderID     string
	Payload     []byte
	Status      InboxMessageStatus
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
