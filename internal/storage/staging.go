package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/jmoiron/sqlx"
)

// StagingStore keeps staged items in the staged_items table
type StagingStore struct {
	db *sqlx.DB
}

// NewStagingStore creates a new StagingStore
func NewStagingStore(db *sqlx.DB) *StagingStore {
	return &StagingStore{db: db}
}

// Upsert stages an item. A zero StagedAt is stamped with the database clock.
// Restaging keeps the original staged_at so the item keeps its place in the
// sweep order.
func (s *StagingStore) Upsert(ctx context.Context, item domain.StagedItem) error {
	query := `
		INSERT INTO staged_items (category, item_key, institution_code, staged_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (category, item_key) DO UPDATE
		SET institution_code = EXCLUDED.institution_code
	`

	var stagedAt *time.Time
	if !item.StagedAt.IsZero() {
		stagedAt = &item.StagedAt
	}

	_, err := s.db.ExecContext(ctx, query, item.Category, item.ItemKey, item.InstitutionCode, stagedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert staged item: %w", err)
	}
	return nil
}

// List returns the staged set of category ordered by staged_at, then item_key
func (s *StagingStore) List(ctx context.Context, category string) ([]domain.StagedItem, error) {
	query := `
		SELECT category, item_key, institution_code, staged_at
		FROM staged_items
		WHERE category = $1
		ORDER BY staged_at, item_key
	`

	var items []domain.StagedItem
	if err := s.db.SelectContext(ctx, &items, query, category); err != nil {
		return nil, fmt.Errorf("failed to list staged items: %w", err)
	}
	return items, nil
}

func (s *StagingStore) Delete(ctx context.Context, category, itemKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM staged_items WHERE category = $1 AND item_key = $2`, category, itemKey)
	if err != nil {
		return fmt.Errorf("failed to delete staged item: %w", err)
	}
	return nil
}

func (s *StagingStore) Count(ctx context.Context, category string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM staged_items WHERE category = $1`, category); err != nil {
		return 0, fmt.Errorf("failed to count staged items: %w", err)
	}
	return n, nil
}
