// Package worker consumes batch messages and runs them through the batch processor.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/batch"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer opens a manual-ack delivery stream on a queue
type Consumer interface {
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
}

// BatchProcessor triages one batch message
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, msg domain.BatchMessage) (*batch.Result, error)
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Consumer  Consumer
	Processor BatchProcessor
	Queue     string
	WorkerID  string
	// Concurrency is the number of batches processed in parallel
	Concurrency  int
	BatchTimeout time.Duration
}

// Worker represents the batch message worker
type Worker struct {
	logger       *slog.Logger
	consumer     Consumer
	processor    BatchProcessor
	validator    *messageValidator
	queue        string
	workerID     string
	concurrency  int
	batchTimeout time.Duration
	tasksChan    chan *task
	wg           sync.WaitGroup
	stopOnce     sync.Once
	stopChan     chan struct{}
}

// task is one decoded batch message paired with the delivery that carried it
type task struct {
	msg      domain.BatchMessage
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	validator, err := newMessageValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile batch message schema: %w", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:       cfg.Logger,
		consumer:     cfg.Consumer,
		processor:    cfg.Processor,
		validator:    validator,
		queue:        cfg.Queue,
		workerID:     cfg.WorkerID,
		concurrency:  concurrency,
		batchTimeout: cfg.BatchTimeout,
		tasksChan:    make(chan *task, concurrency),
		stopChan:     make(chan struct{}),
	}, nil
}

// Start subscribes to the batch queue, spawns the worker pool and blocks
// until ctx is canceled or the delivery stream closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.queue),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("batch_timeout", w.batchTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Worker dispatcher exited",
		slog.String("worker_id", w.workerID),
	)
	return nil
}

// Stop signals the pool to finish and waits for in-flight batches
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
