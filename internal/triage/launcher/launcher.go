// Package launcher fans a category's staged set out into batch messages.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/cuongbtq/item-triage/internal/triage/lock"
	"github.com/google/uuid"
)

// ErrInvalidBatchSize is returned when batch size is not positive
var ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

type locker interface {
	TryAcquire(ctx context.Context, category string, staleAfter time.Duration) lock.Result
}

// Config holds launcher configuration
type Config struct {
	Logger     *slog.Logger
	Locks      locker
	Staging    domain.StagingStore
	Jobs       domain.JobStore
	Queue      domain.BatchQueue
	StaleAfter time.Duration
	// Owners maps a category to the institution code that owns its report
	Owners map[string]string
}

// Summary describes what one Launch call did
type Summary struct {
	JobID         string
	Skipped       string
	TotalItems    int
	TotalBatches  int
	EnqueuedCount int
	FailedBatches []int
}

// Reasons a launch can be skipped
const (
	SkipAlreadyRunning = "already_running"
	SkipNothingStaged  = "nothing_staged"
)

// Launcher starts batch jobs
type Launcher struct {
	logger     *slog.Logger
	locks      locker
	staging    domain.StagingStore
	jobs       domain.JobStore
	queue      domain.BatchQueue
	staleAfter time.Duration
	owners     map[string]string
	now        func() time.Time
	newID      func() string
}

// New creates a launcher
func New(cfg *Config) *Launcher {
	return &Launcher{
		logger:     cfg.Logger,
		locks:      cfg.Locks,
		staging:    cfg.Staging,
		jobs:       cfg.Jobs,
		queue:      cfg.Queue,
		staleAfter: cfg.StaleAfter,
		owners:     cfg.Owners,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
}

// WithClock overrides the time source
func (l *Launcher) WithClock(now func() time.Time) *Launcher {
	l.now = now
	return l
}

// WithIDGenerator overrides job id generation
func (l *Launcher) WithIDGenerator(newID func() string) *Launcher {
	l.newID = newID
	return l
}

// Launch runs one sweep of category. It is a no-op while another job holds
// the category lock or when nothing is staged. Enqueue failures are logged per
// batch and do not stop the remaining batches.
func (l *Launcher) Launch(ctx context.Context, category string, batchSize int) (*Summary, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	l.logger.Info("Starting batch launch",
		slog.String("category", category),
		slog.Int("batch_size", batchSize),
	)

	if l.locks.TryAcquire(ctx, category, l.staleAfter) == lock.AlreadyRunning {
		l.logger.Info("Batch job already in progress, skipping this execution",
			slog.String("category", category),
		)
		return &Summary{Skipped: SkipAlreadyRunning}, nil
	}

	staged, err := l.staging.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged items: %w", err)
	}
	if len(staged) == 0 {
		l.logger.Info("No staged items found for processing", slog.String("category", category))
		return &Summary{Skipped: SkipNothingStaged}, nil
	}

	plan := Plan(staged, batchSize)

	job := &domain.BatchJob{
		JobID:           l.newID(),
		Category:        category,
		InstitutionCode: l.owners[category],
		Status:          domain.JobStatusInProgress,
		TotalItems:      len(staged),
		TotalBatches:    len(plan),
		CreatedAt:       l.now(),
	}
	if err := l.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}

	l.logger.Info("Created batch job",
		slog.String("job_id", job.JobID),
		slog.String("category", category),
		slog.Int("total_items", job.TotalItems),
		slog.Int("total_batches", job.TotalBatches),
	)

	summary := &Summary{
		JobID:        job.JobID,
		TotalItems:   job.TotalItems,
		TotalBatches: job.TotalBatches,
	}

	for i, items := range plan {
		msg := domain.BatchMessage{
			JobID:       job.JobID,
			Category:    category,
			BatchNumber: i + 1,
			Items:       items,
		}

		if err := l.queue.SendBatch(ctx, msg); err != nil {
			l.logger.Error("Failed to enqueue batch",
				slog.String("job_id", job.JobID),
				slog.Int("batch_number", msg.BatchNumber),
				slog.Int("items", len(items)),
				slog.String("error", err.Error()),
			)
			summary.FailedBatches = append(summary.FailedBatches, msg.BatchNumber)
			continue
		}

		summary.EnqueuedCount++
		l.logger.Debug("Enqueued batch",
			slog.String("job_id", job.JobID),
			slog.Int("batch_number", msg.BatchNumber),
			slog.Int("items", len(items)),
		)
	}

	l.logger.Info("Batch processing initiated",
		slog.String("job_id", job.JobID),
		slog.String("category", category),
		slog.Int("total_items", summary.TotalItems),
		slog.Int("batches", summary.TotalBatches),
		slog.Int("enqueued", summary.EnqueuedCount),
	)

	return summary, nil
}

// Plan partitions staged into contiguous batches of at most batchSize,
// preserving order. len(result) == ceil(len(staged)/batchSize).
func Plan(staged []domain.StagedItem, batchSize int) [][]domain.BatchItem {
	if batchSize <= 0 || len(staged) == 0 {
		return nil
	}

	batches := make([][]domain.BatchItem, 0, (len(staged)+batchSize-1)/batchSize)
	for start := 0; start < len(staged); start += batchSize {
		end := min(start+batchSize, len(staged))
		items := make([]domain.BatchItem, 0, end-start)
		for _, s := range staged[start:end] {
			items = append(items, domain.BatchItem{
				ItemKey:         s.ItemKey,
				InstitutionCode: s.InstitutionCode,
			})
		}
		batches = append(batches, items)
	}
	return batches
}
