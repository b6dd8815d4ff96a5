// Package batch triages the items of one batch message.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/item-triage/internal/category"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

type categoryResolver interface {
	Get(name string) (category.Category, error)
}

type progressUpdater interface {
	UpdateProgress(ctx context.Context, jobID string, batchProcessed, batchFailed int) error
}

type lockReleaser interface {
	ReleaseIfDrained(ctx context.Context, category string) (bool, error)
}

// Config holds batch processor configuration
type Config struct {
	Logger     *slog.Logger
	Categories categoryResolver
	Directory  domain.ItemDirectory
	Staging    domain.StagingStore
	Outcomes   domain.OutcomeStore
	Progress   progressUpdater
	Locks      lockReleaser
}

// Result summarises one processed batch
type Result struct {
	Processed int
	Failed    int
	Outcomes  []domain.ItemOutcome
}

// Processor runs the triage pass for a batch
type Processor struct {
	logger     *slog.Logger
	categories categoryResolver
	directory  domain.ItemDirectory
	staging    domain.StagingStore
	outcomes   domain.OutcomeStore
	progress   progressUpdater
	locks      lockReleaser
	now        func() time.Time
}

// New creates a batch processor
func New(cfg *Config) *Processor {
	return &Processor{
		logger:     cfg.Logger,
		categories: cfg.Categories,
		directory:  cfg.Directory,
		staging:    cfg.Staging,
		outcomes:   cfg.Outcomes,
		progress:   cfg.Progress,
		locks:      cfg.Locks,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// ProcessBatch triages every item sequentially, then removes the whole batch
// from staging, reports the counts and releases the category lock once the
// staged set is drained. Per-item failures become outcomes; an error is
// returned only when the batch cannot be processed or its progress cannot be
// recorded; the latter is retryable.
func (p *Processor) ProcessBatch(ctx context.Context, msg domain.BatchMessage) (*Result, error) {
	cat, err := p.categories.Get(msg.Category)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With(
		slog.String("job_id", msg.JobID),
		slog.String("category", msg.Category),
		slog.Int("batch_number", msg.BatchNumber),
	)
	logger.Info("Processing batch", slog.Int("items", len(msg.Items)))

	result := &Result{Outcomes: make([]domain.ItemOutcome, 0, len(msg.Items))}
	for _, item := range msg.Items {
		outcome := p.triageItem(ctx, cat, msg.JobID, item)

		if err := p.outcomes.Put(ctx, outcome); err != nil {
			logger.Error("Failed to store item outcome",
				slog.String("item_key", item.ItemKey),
				slog.String("error", err.Error()),
			)
		}

		if outcome.Success {
			result.Processed++
			logger.Debug("Item triaged", slog.String("item_key", item.ItemKey))
		} else {
			result.Failed++
			logger.Warn("Item not triaged",
				slog.String("item_key", item.ItemKey),
				slog.String("reason", outcome.Reason),
			)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	for _, item := range msg.Items {
		if err := p.staging.Delete(ctx, msg.Category, item.ItemKey); err != nil {
			logger.Warn("Failed to remove staged item",
				slog.String("item_key", item.ItemKey),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := p.progress.UpdateProgress(ctx, msg.JobID, result.Processed, result.Failed); err != nil {
		return result, domain.NewRetryableError(fmt.Errorf("failed to update job progress: %w", err))
	}

	if _, err := p.locks.ReleaseIfDrained(ctx, msg.Category); err != nil {
		logger.Warn("Failed to clean up job lock", slog.String("error", err.Error()))
	}

	logger.Info("Completed batch",
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (p *Processor) triageItem(ctx context.Context, cat category.Category, jobID string, item domain.BatchItem) domain.ItemOutcome {
	outcome := domain.ItemOutcome{
		JobID:           jobID,
		ItemKey:         item.ItemKey,
		InstitutionCode: item.InstitutionCode,
	}

	live, err := p.directory.FetchItem(ctx, item.InstitutionCode, item.ItemKey)
	switch {
	case err != nil:
		p.logger.Debug("Item fetch failed",
			slog.String("job_id", jobID),
			slog.String("item_key", item.ItemKey),
			slog.String("error", err.Error()),
		)
		outcome.Reason = domain.ReasonNotFound
	case !cat.Matches(normalize(live, item)):
		outcome.Reason = domain.ReasonNoLongerMeetsRule
	default:
		if err := cat.Apply(ctx, category.TriageContext{JobID: jobID, Item: live}); err != nil {
			outcome.Reason = err.Error()
		} else {
			outcome.Success = true
		}
	}

	outcome.ProcessedAt = p.now()
	return outcome
}

// normalize fills identity fields the directory may leave empty
func normalize(live *domain.Item, item domain.BatchItem) *domain.Item {
	if live.Barcode == "" {
		live.Barcode = item.ItemKey
	}
	if live.InstitutionCode == "" {
		live.InstitutionCode = item.InstitutionCode
	}
	return live
}
