package storage

import (
	"context"
	"fmt"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/jmoiron/sqlx"
)

// OutcomeStore keeps item outcomes in the item_outcomes table
type OutcomeStore struct {
	db *sqlx.DB
}

// NewOutcomeStore creates a new OutcomeStore
func NewOutcomeStore(db *sqlx.DB) *OutcomeStore {
	return &OutcomeStore{db: db}
}

// Put upserts on (job_id, item_key); a redelivered item replaces its earlier outcome
func (s *OutcomeStore) Put(ctx context.Context, o domain.ItemOutcome) error {
	query := `
		INSERT INTO item_outcomes (job_id, item_key, institution_code, success, reason, processed_at)
		VALUES (:job_id, :item_key, :institution_code, :success, :reason, :processed_at)
		ON CONFLICT (job_id, item_key) DO UPDATE
		SET institution_code = EXCLUDED.institution_code,
		    success = EXCLUDED.success,
		    reason = EXCLUDED.reason,
		    processed_at = EXCLUDED.processed_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("failed to store item outcome: %w", err)
	}
	return nil
}

// ListByJob returns the outcomes of jobID in first-write order
func (s *OutcomeStore) ListByJob(ctx context.Context, jobID string) ([]domain.ItemOutcome, error) {
	query := `
		SELECT job_id, item_key, institution_code, success, reason, processed_at
		FROM item_outcomes
		WHERE job_id = $1
		ORDER BY seq
	`

	var outcomes []domain.ItemOutcome
	if err := s.db.SelectContext(ctx, &outcomes, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list item outcomes: %w", err)
	}
	return outcomes, nil
}
