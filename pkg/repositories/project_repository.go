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

// ProjectRepository defines data access for projects and their per-field
// state cache rows.
type ProjectRepository interface {
	// Ensure creates the project row if it does not exist yet. Projects
	// come into existence on first candidate submission.
	Ensure(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)

	// EnsureFieldState creates an empty field-state row if absent.
	EnsureFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) error
	// LockFieldState loads the field-state row FOR UPDATE, creating it
	// first if needed. Holding the row lock serializes concurrent votes
	// on the same (project, field) pair for the rest of the transaction.
	LockFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error)
	UpsertFieldState(ctx context.Context, state *models.FieldState) error
	GetFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error)
	ListFieldStates(ctx context.Context, projectID uuid.UUID) ([]*models.FieldState, error)
	// DeleteFieldStatesExcept removes cache rows whose field key is not
	// in keep. Used by the recompute jobs to drop stale rows.
	DeleteFieldStatesExcept(ctx context.Context, projectID uuid.UUID, keep []string) error
}

// projectRepository implements ProjectRepository using PostgreSQL.
type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

func (r *projectRepository) Ensure(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO projects (id, published, received_support, created_at)
		VALUES ($1, FALSE, 0, $2)
		ON CONFLICT (id) DO NOTHING`

	if _, err := scope.Q.Exec(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to ensure project: %w", err)
	}

	return nil
}

func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, published, received_support, created_at
		FROM projects
		WHERE id = $1`

	var p models.Project
	err := scope.Q.QueryRow(ctx, query, id).Scan(&p.ID, &p.Published, &p.ReceivedSupport, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &p, nil
}

func (r *projectRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Q.Exec(ctx, `UPDATE projects SET published = $2 WHERE id = $1`, id, published)
	if err != nil {
		return fmt.Errorf("failed to set published flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *projectRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Q.Query(ctx, `SELECT id FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *projectRepository) EnsureFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO project_fields (project_id, field_key, leading_weight, voter_count, accepted, updated_at)
		VALUES ($1, $2, 0, 0, FALSE, $3)
		ON CONFLICT (project_id, field_key) DO NOTHING`

	if _, err := scope.Q.Exec(ctx, query, projectID, fieldKey, time.Now()); err != nil {
		return fmt.Errorf("failed to ensure field state: %w", err)
	}

	return nil
}

func (r *projectRepository) LockFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if err := r.EnsureFieldState(ctx, projectID, fieldKey); err != nil {
		return nil, err
	}

	query := `
		SELECT project_id, field_key, leading_candidate_id, leading_weight, voter_count, accepted, updated_at
		FROM project_fields
		WHERE project_id = $1 AND field_key = $2
		FOR UPDATE`

	var s models.FieldState
	err := scope.Q.QueryRow(ctx, query, projectID, fieldKey).Scan(
		&s.ProjectID,
		&s.FieldKey,
		&s.LeadingCandidateID,
		&s.LeadingWeight,
		&s.VoterCount,
		&s.Accepted,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock field state: %w", err)
	}

	return &s, nil
}

func (r *projectRepository) UpsertFieldState(ctx context.Context, state *models.FieldState) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	state.UpdatedAt = time.Now()

	query := `
		INSERT INTO project_fields (project_id, field_key, leading_candidate_id, leading_weight, voter_count, accepted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id, field_key) DO UPDATE
		SET leading_candidate_id = EXCLUDED.leading_candidate_id,
		    leading_weight = EXCLUDED.leading_weight,
		    voter_count = EXCLUDED.voter_count,
		    accepted = EXCLUDED.accepted,
		    updated_at = EXCLUDED.updated_at`

	_, err := scope.Q.Exec(ctx, query,
		state.ProjectID,
		state.FieldKey,
		state.LeadingCandidateID,
		state.LeadingWeight,
		state.VoterCount,
		state.Accepted,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert field state: %w", err)
	}

	return nil
}

func (r *projectRepository) GetFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT project_id, field_key, leading_candidate_id, leading_weight, voter_count, accepted, updated_at
		FROM project_fields
		WHERE project_id = $1 AND field_key = $2`

	var s models.FieldState
	err := scope.Q.QueryRow(ctx, query, projectID, fieldKey).Scan(
		&s.ProjectID,
		&s.FieldKey,
		&s.LeadingCandidateID,
		&s.LeadingWeight,
		&s.VoterCount,
		&s.Accepted,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get field state: %w", err)
	}

	return &s, nil
}

func (r *projectRepository) ListFieldStates(ctx context.Context, projectID uuid.UUID) ([]*models.FieldState, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT project_id, field_key, leading_candidate_id, leading_weight, voter_count, accepted, updated_at
		FROM project_fields
		WHERE project_id = $1
		ORDER BY field_key ASC`

	rows, err := scope.Q.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list field states: %w", err)
	}
	defer rows.Close()

	var states []*models.FieldState
	for rows.Next() {
		var s models.FieldState
		if err := rows.Scan(&s.ProjectID, &s.FieldKey, &s.LeadingCandidateID, &s.LeadingWeight, &s.VoterCount, &s.Accepted, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field state: %w", err)
		}
		states = append(states, &s)
	}

	return states, rows.Err()
}

func (r *projectRepository) DeleteFieldStatesExcept(ctx context.Context, projectID uuid.UUID, keep []string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		DELETE FROM project_fields
		WHERE project_id = $1 AND NOT (field_key = ANY($2))`

	if _, err := scope.Q.Exec(ctx, query, projectID, keep); err != nil {
		return fmt.Errorf("failed to delete stale field states: %w", err)
	}

	return nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)
