package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps locks in the job_locks table
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Acquire inserts the lock row, or overwrites it when the held row is older
// than staleAfter. xmax is non-zero only for rows taken by the ON CONFLICT branch.
func (s *PostgresStore) Acquire(ctx context.Context, category string, now time.Time, staleAfter time.Duration) (Acquisition, error) {
	query := `
		INSERT INTO job_locks (category, created_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (category) DO UPDATE
		SET created_at = EXCLUDED.created_at,
		    status = EXCLUDED.status
		WHERE job_locks.created_at < $4
		RETURNING (xmax <> 0) AS replaced
	`

	var replaced bool
	err := s.db.QueryRowContext(ctx, query, category, now, domain.LockStatusLocked, now.Add(-staleAfter)).Scan(&replaced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Acquisition{}, nil
		}
		return Acquisition{}, fmt.Errorf("failed to acquire job lock: %w", err)
	}

	return Acquisition{Acquired: true, ReplacedStale: replaced}, nil
}

func (s *PostgresStore) Release(ctx context.Context, category string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_locks WHERE category = $1`, category); err != nil {
		return fmt.Errorf("failed to delete job lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, category string) (*domain.JobLock, error) {
	var l domain.JobLock
	err := s.db.GetContext(ctx, &l, `SELECT category, created_at, status FROM job_locks WHERE category = $1`, category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job lock: %w", err)
	}
	return &l, nil
}
