// Package progress folds per-batch outcome counts into the batch job record.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

var errAlreadyCompleted = errors.New("batch job already completed")

type reportGenerator interface {
	GenerateFinalReport(ctx context.Context, job *domain.BatchJob) error
}

// Config holds aggregator configuration
type Config struct {
	Logger  *slog.Logger
	Jobs    domain.JobStore
	Reports reportGenerator
	// MaxAttempts bounds read-modify-write cycles lost to concurrent writers
	MaxAttempts int
	// RetryInterval is the initial wait after a version conflict
	RetryInterval time.Duration
}

// Aggregator applies batch results to job counters with optimistic concurrency
type Aggregator struct {
	logger        *slog.Logger
	jobs          domain.JobStore
	reports       reportGenerator
	maxAttempts   int
	retryInterval time.Duration
	now           func() time.Time
}

// New creates an aggregator
func New(cfg *Config) *Aggregator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 20 * time.Millisecond
	}
	return &Aggregator{
		logger:        cfg.Logger,
		jobs:          cfg.Jobs,
		reports:       cfg.Reports,
		maxAttempts:   maxAttempts,
		retryInterval: retryInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// UpdateProgress adds one finished batch to the job. The write is a version
// compare-and-swap retried on conflict; only the writer that moves the job to
// completed generates the final report. Updates for unknown jobs, or for jobs
// that already completed, are logged and dropped.
func (a *Aggregator) UpdateProgress(ctx context.Context, jobID string, batchProcessed, batchFailed int) error {
	var updated *domain.BatchJob
	var completedNow bool
	attempts := 0

	op := func() error {
		attempts++

		job, err := a.jobs.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(fmt.Errorf("failed to get batch job: %w", err))
		}

		if job.IsCompleted() {
			return backoff.Permanent(errAlreadyCompleted)
		}

		job.CompletedBatches++
		job.ProcessedItems += batchProcessed
		job.FailedItems += batchFailed

		completedNow = job.CompletedBatches >= job.TotalBatches
		if completedNow {
			completedAt := a.now()
			job.Status = domain.JobStatusCompleted
			job.CompletedAt = &completedAt
		}

		if err := a.jobs.Update(ctx, job); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				a.logger.Debug("Batch job version conflict, retrying",
					slog.String("job_id", jobID),
					slog.Int("attempt", attempts),
				)
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to update batch job: %w", err))
		}

		updated = job
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.retryInterval
	policy.MaxInterval = 20 * a.retryInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(a.maxAttempts-1)), ctx))
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		a.logger.Error("Batch job not found, progress update dropped",
			slog.String("job_id", jobID),
			slog.Int("batch_processed", batchProcessed),
			slog.Int("batch_failed", batchFailed),
		)
		return nil
	case errors.Is(err, errAlreadyCompleted):
		a.logger.Warn("Batch job already completed, progress update dropped",
			slog.String("job_id", jobID),
			slog.Int("batch_processed", batchProcessed),
			slog.Int("batch_failed", batchFailed),
		)
		return nil
	case errors.Is(err, domain.ErrVersionConflict):
		return fmt.Errorf("failed to update batch job after %d attempts: %w", attempts, err)
	case err != nil:
		return err
	}

	a.logger.Info("Batch job progress updated",
		slog.String("job_id", jobID),
		slog.Int("completed_batches", updated.CompletedBatches),
		slog.Int("total_batches", updated.TotalBatches),
		slog.Int("processed_items", updated.ProcessedItems),
		slog.Int("failed_items", updated.FailedItems),
	)

	if completedNow {
		a.logger.Info("Batch job completed, generating final report",
			slog.String("job_id", jobID),
		)
		if err := a.reports.GenerateFinalReport(ctx, updated); err != nil {
			a.logger.Error("Failed to generate final report",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
