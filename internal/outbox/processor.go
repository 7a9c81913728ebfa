package outbox

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	kafkaInfra "ordersaga/internal/infrastructure/kafka"
	"ordersaga/internal/repository/outbox_repo"
)

// Processor relays outbox rows to Kafka on a fixed interval. A run picks up
// PENDING rows and FAILED rows still under the retry ceiling, oldest first,
// and sends each with the aggregate id as partition key. Rows past the
// ceiling stay FAILED for the admin surface.
type Processor struct {
	db            *sql.DB
	outboxRepo    outbox_repo.OutboxRepository
	kafkaProducer kafkaInfra.Producer

	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	maxRetries   int

	purgeInterval time.Duration
	retention     time.Duration

	logger *zap.Logger

	// single-flight guards: a slow run must not overlap the next tick
	processing sync.Mutex
	purging    sync.Mutex
}

func NewProcessor(
	db *sql.DB,
	outboxRepo outbox_repo.OutboxRepository,
	kafkaProducer kafkaInfra.Producer,
	pollInterval, pollTimeout time.Duration,
	batchSize, maxRetries int,
	purgeInterval, retention time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:            db,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		maxRetries:    maxRetries,
		purgeInterval: purgeInterval,
		retention:     retention,
		logger:        logger,
	}
}

// Start runs the publish and purge loops until ctx is canceled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("batch_size", p.batchSize))

	go func() {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Outbox processor stopped.")
				return
			case <-ticker.C:
				p.ProcessOnce(ctx)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(p.purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.PurgeOnce(ctx)
			}
		}
	}()
}

// ProcessOnce publishes one batch. Skips entirely if a previous run is
// still in flight. The whole batch runs inside one transaction: the batch
// select locks its rows until commit, so a concurrent relay instance skips
// them instead of double-publishing.
func (p *Processor) ProcessOnce(ctx context.Context) {
	if !p.processing.TryLock() {
		p.logger.Debug("Previous outbox run still in progress, skipping tick")
		return
	}
	defer p.processing.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(runCtx, nil)
	if err != nil {
		p.logger.Error("Failed to begin outbox relay transaction", zap.Error(err))
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	messages, err := p.outboxRepo.GetUnsentMessages(runCtx, tx, p.maxRetries, p.batchSize)
	if err != nil {
		p.logger.Error("Failed to get unsent outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		p.logger.Debug("No unsent outbox messages found.")
		return
	}

	p.logger.Info("Processing unsent outbox messages", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := p.kafkaProducer.Produce(runCtx, msg.Topic, []byte(msg.Key), msg.Payload); err != nil {
			p.logger.Error("Failed to produce outbox message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("retry_count", msg.RetryCount),
				zap.Error(err))
			if markErr := p.outboxRepo.MarkMessageFailed(runCtx, tx, msg.ID, err.Error()); markErr != nil {
				p.logger.Error("Failed to mark outbox message as failed",
					zap.String("message_id", msg.ID),
					zap.Error(markErr))
			}
			if msg.RetryCount+1 >= p.maxRetries {
				p.logger.Error("Outbox message exceeded retry ceiling, manual intervention required",
					zap.String("alert", "outbox_retries_exhausted"),
					zap.String("message_id", msg.ID),
					zap.String("topic", msg.Topic))
			}
			continue
		}
		if err := p.outboxRepo.MarkMessageSent(runCtx, tx, msg.ID); err != nil {
			p.logger.Error("Failed to mark outbox message as sent",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		} else {
			p.logger.Debug("Outbox message sent and marked as sent",
				zap.String("message_id", msg.ID),
				zap.String("event_type", msg.EventType))
		}
	}

	if err := tx.Commit(); err != nil {
		p.logger.Error("Failed to commit outbox relay transaction", zap.Error(err))
		return
	}
	committed = true
}

// PurgeOnce deletes SENT rows older than the retention window.
func (p *Processor) PurgeOnce(ctx context.Context) {
	if !p.purging.TryLock() {
		return
	}
	defer p.purging.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	cutoff := time.Now().Add(-p.retention)
	deleted, err := p.outboxRepo.DeleteSentBefore(runCtx, p.db, cutoff)
	if err != nil {
		p.logger.Error("Failed to purge sent outbox messages", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("Purged sent outbox messages",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}
