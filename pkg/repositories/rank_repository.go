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

// RankRepository defines data access for rank snapshots.
type RankRepository interface {
	Upsert(ctx context.Context, snapshot *models.RankSnapshot) error
	Get(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error)
	// ListTop returns snapshots ordered by trust score descending, the
	// community-trust ordering.
	ListTop(ctx context.Context, limit int) ([]*models.RankSnapshot, error)
}

// rankRepository implements RankRepository using PostgreSQL.
type rankRepository struct{}

// NewRankRepository creates a new rank snapshot repository.
func NewRankRepository() RankRepository {
	return &rankRepository{}
}

func (r *rankRepository) Upsert(ctx context.Context, snapshot *models.RankSnapshot) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	snapshot.UpdatedAt = time.Now()

	query := `
		INSERT INTO rank_snapshots (project_id, published_genesis_weight, transparency_pct, trust_score, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id) DO UPDATE
		SET published_genesis_weight = EXCLUDED.published_genesis_weight,
		    transparency_pct = EXCLUDED.transparency_pct,
		    trust_score = EXCLUDED.trust_score,
		    updated_at = EXCLUDED.updated_at`

	_, err := scope.Q.Exec(ctx, query,
		snapshot.ProjectID,
		snapshot.PublishedGenesisWeight,
		snapshot.TransparencyPct,
		snapshot.TrustScore,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rank snapshot: %w", err)
	}

	return nil
}

func (r *rankRepository) Get(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT project_id, published_genesis_weight, transparency_pct, trust_score, updated_at
		FROM rank_snapshots
		WHERE project_id = $1`

	var s models.RankSnapshot
	err := scope.Q.QueryRow(ctx, query, projectID).Scan(
		&s.ProjectID,
		&s.PublishedGenesisWeight,
		&s.TransparencyPct,
		&s.TrustScore,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rank snapshot: %w", err)
	}

	return &s, nil
}

func (r *rankRepository) ListTop(ctx context.Context, limit int) ([]*models.RankSnapshot, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT project_id, published_genesis_weight, transparency_pct, trust_score, updated_at
		FROM rank_snapshots
		ORDER BY trust_score DESC, published_genesis_weight DESC
		LIMIT $1`

	rows, err := scope.Q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rank snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.RankSnapshot
	for rows.Next() {
		var s models.RankSnapshot
		if err := rows.Scan(&s.ProjectID, &s.PublishedGenesisWeight, &s.TransparencyPct, &s.TrustScore, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}

	return snapshots, rows.Err()
}

// Ensure rankRepository implements RankRepository at compile time.
var _ RankRepository = (*rankRepository)(nil)
