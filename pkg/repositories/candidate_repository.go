package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/database"
	"github.com/opencurate/curation-engine/pkg/models"
)

// CandidateRepository defines data access for submitted candidates.
// Candidates are insert-only: no update or delete methods exist.
type CandidateRepository interface {
	Create(ctx context.Context, candidate *models.Candidate) error
	Get(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	ListByField(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error)
	// DistinctFields returns the field keys that have at least one
	// candidate for the project, the ground truth behind the field-state
	// cache rebuilt by the recompute jobs.
	DistinctFields(ctx context.Context, projectID uuid.UUID) ([]string, error)
}

// candidateRepository implements CandidateRepository using PostgreSQL.
type candidateRepository struct{}

// NewCandidateRepository creates a new candidate repository.
func NewCandidateRepository() CandidateRepository {
	return &candidateRepository{}
}

func (r *candidateRepository) Create(ctx context.Context, candidate *models.Candidate) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	candidate.CreatedAt = time.Now()

	query := `
		INSERT INTO candidates (id, project_id, field_key, value, ref, reason, submitter_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := scope.Q.Exec(ctx, query,
		candidate.ID,
		candidate.ProjectID,
		candidate.FieldKey,
		candidate.Value,
		candidate.Ref,
		candidate.Reason,
		candidate.SubmitterID,
		candidate.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}

	return nil
}

func (r *candidateRepository) Get(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, field_key, value, COALESCE(ref, ''), COALESCE(reason, ''), submitter_id, created_at
		FROM candidates
		WHERE id = $1`

	var c models.Candidate
	err := scope.Q.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.ProjectID,
		&c.FieldKey,
		&c.Value,
		&c.Ref,
		&c.Reason,
		&c.SubmitterID,
		&c.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	return &c, nil
}

func (r *candidateRepository) ListByField(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, field_key, value, COALESCE(ref, ''), COALESCE(reason, ''), submitter_id, created_at
		FROM candidates
		WHERE project_id = $1 AND field_key = $2
		ORDER BY created_at ASC`

	rows, err := scope.Q.Query(ctx, query, projectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FieldKey, &c.Value, &c.Ref, &c.Reason, &c.SubmitterID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, &c)
	}

	return candidates, rows.Err()
}

func (r *candidateRepository) DistinctFields(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT DISTINCT field_key
		FROM candidates
		WHERE project_id = $1
		ORDER BY field_key`

	rows, err := scope.Q.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate fields: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan field key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Ensure candidateRepository implements CandidateRepository at compile time.
var _ CandidateRepository = (*candidateRepository)(nil)
