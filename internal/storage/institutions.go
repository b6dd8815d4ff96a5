package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/jmoiron/sqlx"
)

// InstitutionStore reads the institutions table
type InstitutionStore struct {
	db *sqlx.DB
}

// NewInstitutionStore creates a new InstitutionStore
func NewInstitutionStore(db *sqlx.DB) *InstitutionStore {
	return &InstitutionStore{db: db}
}

func (s *InstitutionStore) GetByCode(ctx context.Context, code string) (*domain.Institution, error) {
	var inst domain.Institution
	err := s.db.GetContext(ctx, &inst, `SELECT id, code, name, api_key FROM institutions WHERE code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstitutionNotFound
		}
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return &inst, nil
}
