package domain

import "errors"

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderTerminal           = errors.New("order is in a terminal status")
	ErrSagaNotFound            = errors.New("saga not found")
	ErrSagaTerminal            = errors.New("saga is in a terminal status")
	ErrSagaAlreadyExists       = errors.New("saga already exists for order")
	ErrVersionConflict         = errors.New("saga version conflict")
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
	ErrInboxMessageNotFound    = errors.New("inbox message not found")
	ErrOutboxMessageNotFound   = errors.New("outbox message not found")
)
