package monitor

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	appsaga "ordersaga/internal/app/saga"
	"ordersaga/internal/repository/saga_repo"
)

// TimeoutMonitor scans for sagas stuck IN_PROGRESS past the staleness
// threshold and hands each to the orchestrator's recovery path. The scan is
// read-only; the per-saga claim happens inside RecoverSaga as a
// version-guarded update, so overlapping monitor instances cannot both
// retry or compensate the same saga.
type TimeoutMonitor struct {
	db          *sql.DB
	sagaRepo    saga_repo.SagaRepository
	sagaService appsaga.SagaService

	interval  time.Duration
	threshold time.Duration
	batchSize int

	logger *zap.Logger

	running sync.Mutex
}

func NewTimeoutMonitor(
	db *sql.DB,
	sagaRepo saga_repo.SagaRepository,
	sagaService appsaga.SagaService,
	interval, threshold time.Duration,
	batchSize int,
	logger *zap.Logger,
) *TimeoutMonitor {
	return &TimeoutMonitor{
		db:          db,
		sagaRepo:    sagaRepo,
		sagaService: sagaService,
		interval:    interval,
		threshold:   threshold,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Start runs the scan loop until ctx is canceled.
func (m *TimeoutMonitor) Start(ctx context.Context) {
	m.logger.Info("Starting saga timeout monitor",
		zap.Duration("interval", m.interval),
		zap.Duration("threshold", m.threshold))

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("Saga timeout monitor stopped.")
				return
			case <-ticker.C:
				m.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs one scan. Skips if a previous scan is still in flight.
func (m *TimeoutMonitor) RunOnce(ctx context.Context) {
	if !m.running.TryLock() {
		m.logger.Debug("Previous timeout scan still in progress, skipping tick")
		return
	}
	defer m.running.Unlock()

	olderThan := time.Now().Add(-m.threshold)
	stuck, err := m.sagaRepo.FindStuck(ctx, m.db, olderThan, m.batchSize)
	if err != nil {
		m.logger.Error("Failed to query stuck sagas", zap.Error(err))
		return
	}
	if len(stuck) == 0 {
		m.logger.Debug("No stuck sagas found.")
		return
	}

	m.logger.Info("Found stuck sagas", zap.Int("count", len(stuck)))

	for _, state := range stuck {
		if err := m.sagaService.RecoverSaga(ctx, state); err != nil {
			m.logger.Error("Failed to recover stuck saga",
				zap.String("saga_id", state.ID),
				zap.String("order_id", state.OrderID),
				zap.String("step", string(state.Step)),
				zap.Error(err))
		}
	}
}
