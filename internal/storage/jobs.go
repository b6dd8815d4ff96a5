package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, category, institution_code, status,
	total_items, total_batches, completed_batches, processed_items, failed_items,
	created_at, completed_at, version
`

// JobStore keeps batch jobs in the batch_jobs table
type JobStore struct {
	db *sqlx.DB
}

// NewJobStore creates a new JobStore
func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts job with version 1
func (s *JobStore) Create(ctx context.Context, job *domain.BatchJob) error {
	job.Version = 1
	query := `
		INSERT INTO batch_jobs (
			job_id, category, institution_code, status,
			total_items, total_batches, completed_batches, processed_items, failed_items,
			created_at, completed_at, version
		) VALUES (
			:job_id, :category, :institution_code, :status,
			:total_items, :total_batches, :completed_batches, :processed_items, :failed_items,
			:created_at, :completed_at, :version
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create batch job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	var job domain.BatchJob
	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM batch_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return &job, nil
}

// Update writes the mutable fields of job when the stored version matches
// job.Version, and advances job.Version on success.
func (s *JobStore) Update(ctx context.Context, job *domain.BatchJob) error {
	query := `
		UPDATE batch_jobs
		SET status = $1,
		    completed_batches = $2,
		    processed_items = $3,
		    failed_items = $4,
		    completed_at = $5,
		    version = version + 1
		WHERE job_id = $6
		  AND version = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		job.Status,
		job.CompletedBatches,
		job.ProcessedItems,
		job.FailedItems,
		job.CompletedAt,
		job.JobID,
		job.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM batch_jobs WHERE job_id = $1)`, job.JobID); err != nil {
			return fmt.Errorf("failed to check batch job: %w", err)
		}
		if !exists {
			return domain.ErrJobNotFound
		}
		return domain.ErrVersionConflict
	}

	job.Version++
	return nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	Category string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position after the last returned job
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// List returns up to PageSize+1 jobs, newest first. The extra row tells the
// caller whether another page exists.
func (s *JobStore) List(ctx context.Context, filter JobFilter) ([]domain.BatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, filter.Category)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.BatchJob
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list batch jobs: %w", err)
	}
	return jobs, nil
}
