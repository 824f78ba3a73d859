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

// LeadershipRepository defines data access for the append-only
// leadership log. Rows are inserted, never updated except to flip the
// superseded flag on older rows when a new row is appended, and never
// deleted.
type LeadershipRepository interface {
	// Append supersedes the current row for the pair and inserts entry as
	// the new current row.
	Append(ctx context.Context, entry *models.LeadershipEntry) error
	// Latest returns the current (non-superseded) row for the pair, or
	// ErrNotFound when the field has no history yet.
	Latest(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.LeadershipEntry, error)
	// History returns all rows for the pair, newest first.
	History(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error)
	// HasAcceptedBySubmitter reports whether any accepted row for the
	// pair points at a candidate owned by the submitter. This is the
	// reward-idempotency check: it must run before the new accepted row
	// is appended.
	HasAcceptedBySubmitter(ctx context.Context, projectID uuid.UUID, fieldKey string, submitterID uuid.UUID) (bool, error)
}

// leadershipRepository implements LeadershipRepository using PostgreSQL.
type leadershipRepository struct{}

// NewLeadershipRepository creates a new leadership log repository.
func NewLeadershipRepository() LeadershipRepository {
	return &leadershipRepository{}
}

func (r *leadershipRepository) Append(ctx context.Context, entry *models.LeadershipEntry) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	entry.Superseded = false

	supersede := `
		UPDATE leadership_log
		SET superseded = TRUE
		WHERE project_id = $1 AND field_key = $2 AND NOT superseded`

	if _, err := scope.Q.Exec(ctx, supersede, entry.ProjectID, entry.FieldKey); err != nil {
		return fmt.Errorf("failed to supersede leadership entries: %w", err)
	}

	insert := `
		INSERT INTO leadership_log (id, project_id, field_key, candidate_id, accepted, superseded, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`

	_, err := scope.Q.Exec(ctx, insert,
		entry.ID,
		entry.ProjectID,
		entry.FieldKey,
		entry.CandidateID,
		entry.Accepted,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append leadership entry: %w", err)
	}

	return nil
}

func (r *leadershipRepository) Latest(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.LeadershipEntry, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, field_key, candidate_id, accepted, superseded, created_at
		FROM leadership_log
		WHERE project_id = $1 AND field_key = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var e models.LeadershipEntry
	err := scope.Q.QueryRow(ctx, query, projectID, fieldKey).Scan(
		&e.ID,
		&e.ProjectID,
		&e.FieldKey,
		&e.CandidateID,
		&e.Accepted,
		&e.Superseded,
		&e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest leadership entry: %w", err)
	}

	return &e, nil
}

func (r *leadershipRepository) History(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, field_key, candidate_id, accepted, superseded, created_at
		FROM leadership_log
		WHERE project_id = $1 AND field_key = $2
		ORDER BY created_at DESC, id DESC`

	rows, err := scope.Q.Query(ctx, query, projectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get leadership history: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeadershipEntry
	for rows.Next() {
		var e models.LeadershipEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.FieldKey, &e.CandidateID, &e.Accepted, &e.Superseded, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leadership entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func (r *leadershipRepository) HasAcceptedBySubmitter(ctx context.Context, projectID uuid.UUID, fieldKey string, submitterID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM leadership_log l
			JOIN candidates c ON c.id = l.candidate_id
			WHERE l.project_id = $1 AND l.field_key = $2 AND l.accepted AND c.submitter_id = $3
		)`

	var exists bool
	if err := scope.Q.QueryRow(ctx, query, projectID, fieldKey, submitterID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check accepted history: %w", err)
	}

	return exists, nil
}

// Ensure leadershipRepository implements LeadershipRepository at compile time.
var _ LeadershipRepository = (*leadershipRepository)(nil)
