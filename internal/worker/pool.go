package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case t := <-w.tasksChan:
			w.handle(ctx, workerName, t)
		}
	}
}

// handle processes one batch and settles its delivery
func (w *Worker) handle(ctx context.Context, workerName string, t *task) {
	batchCtx := ctx
	if w.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, w.batchTimeout)
		defer cancel()
	}

	result, err := w.processor.ProcessBatch(batchCtx, t.msg)
	if err != nil {
		requeue := shouldRequeue(err)
		w.logger.Error("Batch processing failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", t.msg.JobID),
			slog.Int("batch_number", t.msg.BatchNumber),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		if nackErr := t.delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("job_id", t.msg.JobID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := t.delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", t.msg.JobID),
			slog.String("error", ackErr.Error()),
		)
		return
	}

	w.logger.Info("Batch completed",
		slog.String("worker_name", workerName),
		slog.String("job_id", t.msg.JobID),
		slog.Int("batch_number", t.msg.BatchNumber),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
	)
}

// shouldRequeue decides whether a failed batch goes back on the queue
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrUnknownCategory) || errors.Is(err, domain.ErrInvalidBatchMessage) {
		return false
	}

	// interrupted by shutdown or timeout; another worker can pick it up
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
