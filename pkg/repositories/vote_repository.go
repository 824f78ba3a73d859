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

// VoteRepository defines data access for the vote ledger. A voter holds
// at most one record per (project, field); switching retargets the
// record in place.
type VoteRepository interface {
	Create(ctx context.Context, record *models.VoteRecord) error
	// GetForField returns the voter's active record on the pair, or
	// ErrNotFound.
	GetForField(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string) (*models.VoteRecord, error)
	// Retarget updates an existing record's candidate and weight in place.
	Retarget(ctx context.Context, id, candidateID uuid.UUID, weight int64) error
	// CommittedWeight sums the weight of all of the voter's active records.
	CommittedWeight(ctx context.Context, voterID uuid.UUID) (int64, error)
	// AggregateByCandidate tallies active vote weight per candidate for
	// one (project, field) pair, ordered by weight descending then
	// candidate submission time ascending. The first tally, when any
	// exists, is the field's leader under the earliest-submission
	// tie-break.
	AggregateByCandidate(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]models.CandidateTally, error)
}

// voteRepository implements VoteRepository using PostgreSQL.
type voteRepository struct{}

// NewVoteRepository creates a new vote repository.
func NewVoteRepository() VoteRepository {
	return &voteRepository{}
}

func (r *voteRepository) Create(ctx context.Context, record *models.VoteRecord) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO vote_records (id, voter_id, project_id, field_key, target_candidate_id, weight, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := scope.Q.Exec(ctx, query,
		record.ID,
		record.VoterID,
		record.ProjectID,
		record.FieldKey,
		record.CandidateID,
		record.Weight,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create vote record: %w", err)
	}

	return nil
}

func (r *voteRepository) GetForField(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string) (*models.VoteRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, voter_id, project_id, field_key, target_candidate_id, weight, created_at, updated_at
		FROM vote_records
		WHERE voter_id = $1 AND project_id = $2 AND field_key = $3`

	var v models.VoteRecord
	err := scope.Q.QueryRow(ctx, query, voterID, projectID, fieldKey).Scan(
		&v.ID,
		&v.VoterID,
		&v.ProjectID,
		&v.FieldKey,
		&v.CandidateID,
		&v.Weight,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vote record: %w", err)
	}

	return &v, nil
}

func (r *voteRepository) Retarget(ctx context.Context, id, candidateID uuid.UUID, weight int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE vote_records
		SET target_candidate_id = $2, weight = $3, updated_at = $4
		WHERE id = $1`

	result, err := scope.Q.Exec(ctx, query, id, candidateID, weight, time.Now())
	if err != nil {
		return fmt.Errorf("failed to retarget vote record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *voteRepository) CommittedWeight(ctx context.Context, voterID uuid.UUID) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT COALESCE(SUM(weight), 0)
		FROM vote_records
		WHERE voter_id = $1`

	var committed int64
	if err := scope.Q.QueryRow(ctx, query, voterID).Scan(&committed); err != nil {
		return 0, fmt.Errorf("failed to sum committed weight: %w", err)
	}

	return committed, nil
}

func (r *voteRepository) AggregateByCandidate(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]models.CandidateTally, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT v.target_candidate_id, SUM(v.weight), COUNT(DISTINCT v.voter_id), c.created_at
		FROM vote_records v
		JOIN candidates c ON c.id = v.target_candidate_id
		WHERE v.project_id = $1 AND v.field_key = $2
		GROUP BY v.target_candidate_id, c.created_at
		ORDER BY SUM(v.weight) DESC, c.created_at ASC, v.target_candidate_id ASC`

	rows, err := scope.Q.Query(ctx, query, projectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate votes: %w", err)
	}
	defer rows.Close()

	var tallies []models.CandidateTally
	for rows.Next() {
		var t models.CandidateTally
		if err := rows.Scan(&t.CandidateID, &t.Weight, &t.Voters, &t.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote tally: %w", err)
		}
		tallies = append(tallies, t)
	}

	return tallies, rows.Err()
}

// Ensure voteRepository implements VoteRepository at compile time.
var _ VoteRepository = (*voteRepository)(nil)
