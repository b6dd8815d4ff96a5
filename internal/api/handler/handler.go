package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/item-triage/internal/storage"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/cuongbtq/item-triage/internal/triage/launcher"
)

// JobReader reads batch job records
type JobReader interface {
	Get(ctx context.Context, jobID string) (*domain.BatchJob, error)
	List(ctx context.Context, filter storage.JobFilter) ([]domain.BatchJob, error)
}

// ArtifactReader loads stored report artifacts
type ArtifactReader interface {
	GetArtifact(ctx context.Context, name string) (*storage.Artifact, error)
}

// Launcher starts a sweep of a category
type Launcher interface {
	Launch(ctx context.Context, category string, batchSize int) (*launcher.Summary, error)
}

// LockReader reports the lock held for a category
type LockReader interface {
	Status(ctx context.Context, category string) (*domain.JobLock, error)
}

// Categories answers which category names are registered
type Categories interface {
	Has(name string) bool
	Names() []string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger           *slog.Logger
	Staging          domain.StagingStore
	Jobs             JobReader
	Outcomes         domain.OutcomeStore
	Artifacts        ArtifactReader
	Launcher         Launcher
	Locks            LockReader
	Categories       Categories
	DefaultBatchSize int
	// HealthCheck reports whether the backing database is reachable
	HealthCheck func(ctx context.Context) error
	// Now stamps staged items, defaults to time.Now
	Now func() time.Time
}

// CategoryHandler handles staging, launch and lock requests per category
type CategoryHandler struct {
	logger           *slog.Logger
	staging          domain.StagingStore
	launcher         Launcher
	locks            LockReader
	categories       Categories
	defaultBatchSize int
	now              func() time.Time
}

// NewCategoryHandler creates a new CategoryHandler instance
func NewCategoryHandler(deps *Dependencies) *CategoryHandler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &CategoryHandler{
		now:              now,
		logger:           deps.Logger,
		staging:          deps.Staging,
		launcher:         deps.Launcher,
		locks:            deps.Locks,
		categories:       deps.Categories,
		defaultBatchSize: deps.DefaultBatchSize,
	}
}

// JobHandler handles batch job, outcome and artifact requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobReader
	outcomes  domain.OutcomeStore
	artifacts ArtifactReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		outcomes:  deps.Outcomes,
		artifacts: deps.Artifacts,
	}
}
