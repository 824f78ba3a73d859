package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// RankService is the rank aggregator: it derives a project's published
// genesis weight, transparency percentage and trust score from the
// field-state cache plus the catalog, and maintains the published flag.
type RankService interface {
	// Recompute rebuilds the project's rank snapshot from its current
	// field states. Idempotent.
	Recompute(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error)

	Get(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error)
	ListTop(ctx context.Context, limit int) ([]*models.RankSnapshot, error)
}

type rankService struct {
	projects repositories.ProjectRepository
	ranks    repositories.RankRepository
	catalog  *catalog.Catalog
	logger   *zap.Logger
}

// NewRankService creates a new RankService.
func NewRankService(
	projects repositories.ProjectRepository,
	ranks repositories.RankRepository,
	cat *catalog.Catalog,
	logger *zap.Logger,
) RankService {
	return &rankService{
		projects: projects,
		ranks:    ranks,
		catalog:  cat,
		logger:   logger.Named("rank-service"),
	}
}

var _ RankService = (*rankService)(nil)

func (s *rankService) Recompute(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	states, err := s.projects.ListFieldStates(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list field states: %w", err)
	}

	acceptedKeys := make(map[string]bool, len(states))
	var genesis int64
	for _, state := range states {
		if !state.Accepted {
			continue
		}
		weight, err := s.catalog.GenesisWeight(state.FieldKey)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnknownFieldKey) {
				// A field removed from the catalog no longer counts, but
				// its history stays.
				s.logger.Warn("Field state references unknown catalog key",
					zap.String("project_id", projectID.String()),
					zap.String("field_key", state.FieldKey))
				continue
			}
			return nil, err
		}
		acceptedKeys[state.FieldKey] = true
		genesis += weight
	}

	snapshot := &models.RankSnapshot{
		ProjectID:              projectID,
		PublishedGenesisWeight: genesis,
		TransparencyPct:        transparencyPct(genesis, s.catalog.TotalGenesisWeight()),
		TrustScore:             project.ReceivedSupport,
	}

	if err := s.ranks.Upsert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("upsert rank snapshot: %w", err)
	}

	published := allAccepted(s.catalog.EssentialKeys(), acceptedKeys)
	if published != project.Published {
		if err := s.projects.SetPublished(ctx, projectID, published); err != nil {
			return nil, fmt.Errorf("set published flag: %w", err)
		}
		s.logger.Info("Project publication changed",
			zap.String("project_id", projectID.String()),
			zap.Bool("published", published))
	}

	return snapshot, nil
}

func (s *rankService) Get(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error) {
	snapshot, err := s.ranks.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get rank snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *rankService) ListTop(ctx context.Context, limit int) ([]*models.RankSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	snapshots, err := s.ranks.ListTop(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list rank snapshots: %w", err)
	}
	return snapshots, nil
}

// transparencyPct converts genesis weight to a share of the catalog
// maximum, rounded and clamped to [0, 100].
func transparencyPct(genesis, totalPossible int64) int {
	if totalPossible <= 0 {
		return 0
	}
	pct := int(math.Round(float64(genesis) / float64(totalPossible) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// allAccepted reports whether every key in required is present in
// accepted. An empty required set counts as satisfied only when the
// catalog actually has essential fields.
func allAccepted(required []string, accepted map[string]bool) bool {
	if len(required) == 0 {
		return false
	}
	for _, key := range required {
		if !accepted[key] {
			return false
		}
	}
	return true
}
