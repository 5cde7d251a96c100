package notify

import (
	"context"

	"go.uber.org/zap"
)

// WorkerConfig bounds one drain pass.
type WorkerConfig struct {
	BatchSize   int // rows claimed per tick
	MaxAttempts int // retry ceiling before an item goes dead
}

// DefaultWorkerConfig matches the production cadence: small batches on
// a one-minute tick.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{BatchSize: 50, MaxAttempts: 5}
}

// Worker drains the notification queue. One Run is one tick; the
// schedule registry provides the interval and the single-flight guard.
type Worker struct {
	queue   Queue
	gateway Gateway
	config  WorkerConfig
	logger  *zap.Logger
}

func NewWorker(queue Queue, gateway Gateway, config WorkerConfig, logger *zap.Logger) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultWorkerConfig().MaxAttempts
	}
	return &Worker{queue: queue, gateway: gateway, config: config, logger: logger}
}

// RunStats reports one tick's outcome for observability.
type RunStats struct {
	Processed int
	Failed    int
}

// Run claims one batch and attempts delivery item by item. Gateway
// failures are recorded per item and retried on a later tick; only a
// queue-level failure (cannot even claim the batch) aborts the tick.
//
// A zero-activity tick produces no log line above debug; this fires
// every minute and must not flood the sink.
func (w *Worker) Run(ctx context.Context) error {
	batch, err := w.queue.ClaimBatch(ctx, w.config.BatchSize, w.config.MaxAttempts)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	stats := RunStats{}
	for _, item := range batch {
		if err := w.gateway.Send(ctx, item.Recipient, item.Message); err != nil {
			stats.Failed++
			w.logger.Error("notification delivery failed",
				zap.String("notification_id", item.ID),
				zap.Int("attempts", item.Attempts+1),
				zap.Error(err),
			)
			if markErr := w.queue.MarkFailed(ctx, item.ID, err.Error(), w.config.MaxAttempts); markErr != nil {
				w.logger.Error("failed to record delivery failure",
					zap.String("notification_id", item.ID),
					zap.Error(markErr),
				)
			}
			continue
		}

		if err := w.queue.MarkSent(ctx, item.ID); err != nil {
			// Delivered but not recorded; the item stays in processing
			// and surfaces in the queue counts for manual review.
			stats.Failed++
			w.logger.Error("failed to mark notification sent",
				zap.String("notification_id", item.ID),
				zap.Error(err),
			)
			continue
		}
		stats.Processed++
	}

	w.logger.Info("notification queue drained",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
	)
	return nil
}
