package domain

import (
	"context"
)

// StagingStore holds flagged items awaiting triage, keyed by category and item key
type StagingStore interface {
	Upsert(ctx context.Context, item StagedItem) error
	// List returns the staged set in staging order
	List(ctx context.Context, category string) ([]StagedItem, error)
	Delete(ctx context.Context, category, itemKey string) error
	Count(ctx context.Context, category string) (int, error)
}

// JobStore persists batch job records
type JobStore interface {
	Create(ctx context.Context, job *BatchJob) error
	Get(ctx context.Context, jobID string) (*BatchJob, error)
	// Update writes job only if the stored version still equals job.Version.
	// On success job.Version is advanced; on a lost race ErrVersionConflict is returned.
	Update(ctx context.Context, job *BatchJob) error
}

// OutcomeStore persists per-item triage outcomes
type OutcomeStore interface {
	// Put upserts on (JobID, ItemKey)
	Put(ctx context.Context, outcome ItemOutcome) error
	ListByJob(ctx context.Context, jobID string) ([]ItemOutcome, error)
}

// BatchQueue sends batch messages to the batch workers
type BatchQueue interface {
	SendBatch(ctx context.Context, msg BatchMessage) error
}

// ItemDirectory fetches the live state of an item. It returns ErrItemNotFound
// when the item does not exist; retries are its own concern.
type ItemDirectory interface {
	FetchItem(ctx context.Context, institutionCode, itemKey string) (*Item, error)
}

// ArtifactStore stores named report artifacts. Writing an existing name replaces it.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, name, contentType string, data []byte) error
}

// Notification tells staff that a report artifact is ready.
// InstitutionID is nil when the owning institution could not be resolved.
type Notification struct {
	JobID           string `json:"job_id"`
	InstitutionID   *int64 `json:"institution_id"`
	InstitutionCode string `json:"institution_code"`
	ProcessType     string `json:"process_type"`
	Artifact        string `json:"artifact"`
}

// UpdateMessage asks the downstream update service to write an item back
type UpdateMessage struct {
	JobID         string `json:"job_id"`
	ItemKey       string `json:"item_key"`
	InstitutionID int64  `json:"institution_id"`
	ProcessType   string `json:"process_type"`
	Artifact      string `json:"artifact"`
}

// Publisher sends fire-and-forget messages to downstream services
type Publisher interface {
	SendNotification(ctx context.Context, n Notification) error
	SendUpdate(ctx context.Context, msg UpdateMessage) error
}

// InstitutionStore resolves institutions by code
type InstitutionStore interface {
	GetByCode(ctx context.Context, code string) (*Institution, error)
}
