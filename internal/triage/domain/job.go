package domain

import "time"

// StagedItem is a flagged item awaiting one triage pass
type StagedItem struct {
	Category        string    `db:"category" json:"category"`
	ItemKey         string    `db:"item_key" json:"item_key"`
	InstitutionCode string    `db:"institution_code" json:"institution_code"`
	StagedAt        time.Time `db:"staged_at" json:"staged_at"`
}

// JobLock is the per-category launch mutex
type JobLock struct {
	Category  string    `db:"category"`
	CreatedAt time.Time `db:"created_at"`
	Status    string    `db:"status"`
}

// BatchJob is one sweep of a category's staged set.
// Version is the optimistic concurrency token; every successful write bumps it.
type BatchJob struct {
	JobID            string     `db:"job_id" json:"job_id"`
	Category         string     `db:"category" json:"category"`
	InstitutionCode  string     `db:"institution_code" json:"institution_code"`
	Status           string     `db:"status" json:"status"`
	TotalItems       int        `db:"total_items" json:"total_items"`
	TotalBatches     int        `db:"total_batches" json:"total_batches"`
	CompletedBatches int        `db:"completed_batches" json:"completed_batches"`
	ProcessedItems   int        `db:"processed_items" json:"processed_items"`
	FailedItems      int        `db:"failed_items" json:"failed_items"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Version          int64      `db:"version" json:"version"`
}

// IsCompleted reports whether the job has reached its terminal state
func (j *BatchJob) IsCompleted() bool {
	return j.Status == JobStatusCompleted
}

// BatchItem is one entry of a batch message
type BatchItem struct {
	ItemKey         string `json:"item_key"`
	InstitutionCode string `json:"institution_code"`
}

// BatchMessage is the unit of fan-out. Immutable once enqueued.
type BatchMessage struct {
	JobID       string      `json:"job_id"`
	Category    string      `json:"category"`
	BatchNumber int         `json:"batch_number"`
	Items       []BatchItem `json:"items"`

	DeliveryTag uint64 `json:"-"`
}

// ItemOutcome records one triage attempt. Identity is (JobID, ItemKey), so a
// redelivered batch overwrites rather than duplicates.
type ItemOutcome struct {
	JobID           string    `db:"job_id" json:"job_id"`
	ItemKey         string    `db:"item_key" json:"item_key"`
	InstitutionCode string    `db:"institution_code" json:"institution_code"`
	Success         bool      `db:"success" json:"success"`
	Reason          string    `db:"reason" json:"reason,omitempty"`
	ProcessedAt     time.Time `db:"processed_at" json:"processed_at"`
}

// Institution is the read-only view of an institution record
type Institution struct {
	ID     int64  `db:"id"`
	Code   string `db:"code"`
	Name   string `db:"name"`
	APIKey string `db:"api_key"`
}

// Item is the live state of a record in the external item directory
type Item struct {
	Barcode               string `json:"barcode"`
	InstitutionCode       string `json:"institution_code"`
	Location              string `json:"location,omitempty"`
	TempLocation          string `json:"temp_location,omitempty"`
	AlternativeCallNumber string `json:"alternative_call_number,omitempty"`
	InternalNote1         string `json:"internal_note_1,omitempty"`
	Provenance            string `json:"provenance,omitempty"`
}

// ArtifactName builds an artifact name keyed by job and item, so repeated
// writes for the same pair land on the same artifact.
func ArtifactName(prefix, jobID, itemKey string) string {
	return prefix + "/" + jobID + "/" + itemKey + ".json"
}
