package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrArtifactNotFound is returned when no artifact is stored under a name
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is a stored report artifact
type Artifact struct {
	Name        string `db:"name"`
	ContentType string `db:"content_type"`
	Data        []byte `db:"data"`
}

// ArtifactStore keeps report artifacts in the artifacts table
type ArtifactStore struct {
	db *sqlx.DB
}

// NewArtifactStore creates a new ArtifactStore
func NewArtifactStore(db *sqlx.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// PutArtifact stores data under name, replacing any previous content
func (s *ArtifactStore) PutArtifact(ctx context.Context, name, contentType string, data []byte) error {
	query := `
		INSERT INTO artifacts (name, content_type, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET content_type = EXCLUDED.content_type,
		    data = EXCLUDED.data,
		    updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, name, contentType, data); err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

// GetArtifact loads the artifact stored under name
func (s *ArtifactStore) GetArtifact(ctx context.Context, name string) (*Artifact, error) {
	var a Artifact
	err := s.db.GetContext(ctx, &a, `SELECT name, content_type, data FROM artifacts WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}
