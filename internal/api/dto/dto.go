package dto

import "time"

type StageItem struct {
	ItemKey         string `json:"item_key" binding:"required"`
	InstitutionCode string `json:"institution_code" binding:"required"`
}

type StageItemsRequest struct {
	Items []StageItem `json:"items" binding:"required,min=1,dive"`
}

type StageItemsResponse struct {
	Category string `json:"category"`
	Staged   int    `json:"staged"`
}

type StagedItemDTO struct {
	ItemKey         string    `json:"item_key"`
	InstitutionCode string    `json:"institution_code"`
	StagedAt        time.Time `json:"staged_at"`
}

type ListStagedResponse struct {
	Category string          `json:"category"`
	Items    []StagedItemDTO `json:"items"`
}

type LaunchRequest struct {
	BatchSize int `json:"batch_size" binding:"omitempty,min=1"`
}

type LaunchResponse struct {
	Category      string `json:"category"`
	JobID         string `json:"job_id,omitempty"`
	Skipped       string `json:"skipped,omitempty"`
	TotalItems    int    `json:"total_items"`
	TotalBatches  int    `json:"total_batches"`
	EnqueuedCount int    `json:"enqueued_count"`
	FailedBatches []int  `json:"failed_batches,omitempty"`
}

type LockResponse struct {
	Category  string     `json:"category"`
	Locked    bool       `json:"locked"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type ListJobsRequest struct {
	Category string `form:"category"`
	Status   string `form:"status" binding:"omitempty,oneof=in_progress completed"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type JobDTO struct {
	JobID            string     `json:"job_id"`
	Category         string     `json:"category"`
	InstitutionCode  string     `json:"institution_code"`
	Status           string     `json:"status"`
	TotalItems       int        `json:"total_items"`
	TotalBatches     int        `json:"total_batches"`
	CompletedBatches int        `json:"completed_batches"`
	ProcessedItems   int        `json:"processed_items"`
	FailedItems      int        `json:"failed_items"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type OutcomeDTO struct {
	ItemKey         string    `json:"item_key"`
	InstitutionCode string    `json:"institution_code"`
	Success         bool      `json:"success"`
	Reason          string    `json:"reason,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
}

type ListOutcomesResponse struct {
	JobID    string       `json:"job_id"`
	Outcomes []OutcomeDTO `json:"outcomes"`
}
