// Package scheduler launches configured categories on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/launcher"
)

// Launcher starts one sweep of a category
type Launcher interface {
	Launch(ctx context.Context, category string, batchSize int) (*launcher.Summary, error)
}

// Target is one category swept on every tick
type Target struct {
	Category  string
	BatchSize int
}

// Config holds scheduler configuration
type Config struct {
	Logger   *slog.Logger
	Launcher Launcher
	Interval time.Duration
	Targets  []Target
	// RunOnStart triggers a sweep immediately instead of waiting one interval
	RunOnStart bool
}

// Scheduler runs the launcher for every target on each tick
type Scheduler struct {
	logger     *slog.Logger
	launcher   Launcher
	interval   time.Duration
	targets    []Target
	runOnStart bool
}

// New creates a scheduler
func New(cfg *Config) *Scheduler {
	return &Scheduler{
		logger:     cfg.Logger,
		launcher:   cfg.Launcher,
		interval:   cfg.Interval,
		targets:    cfg.Targets,
		runOnStart: cfg.RunOnStart,
	}
}

// Run blocks until ctx is canceled
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("categories", len(s.targets)),
	)

	if s.runOnStart {
		s.Tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped - context canceled")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick launches every target once. A failing category does not stop the others.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, target := range s.targets {
		if ctx.Err() != nil {
			return
		}

		summary, err := s.launcher.Launch(ctx, target.Category, target.BatchSize)
		if err != nil {
			s.logger.Error("Scheduled launch failed",
				slog.String("category", target.Category),
				slog.String("error", err.Error()),
			)
			continue
		}

		if summary.Skipped != "" {
			s.logger.Debug("Scheduled launch skipped",
				slog.String("category", target.Category),
				slog.String("reason", summary.Skipped),
			)
			continue
		}

		s.logger.Info("Scheduled launch completed",
			slog.String("category", target.Category),
			slog.String("job_id", summary.JobID),
			slog.Int("total_batches", summary.TotalBatches),
			slog.Int("enqueued", summary.EnqueuedCount),
		)
	}
}
