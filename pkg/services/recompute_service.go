package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/database"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
	"github.com/opencurate/curation-engine/pkg/retry"
)

// RecomputeService rebuilds the denormalized caches (field states, rank
// snapshots) strictly from the leadership log and the vote ledger,
// bypassing the incremental path. Running a recompute twice, or against
// a store the live path already updated, produces identical state; the
// jobs exist for backfill and repair, and the live path is tested
// against them.
type RecomputeService interface {
	RecomputeProject(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error)

	// RecomputeAll rebuilds every project, isolating failures: a failed
	// project is logged and skipped, not fatal to the batch. Returns the
	// number of projects rebuilt.
	RecomputeAll(ctx context.Context) (int, error)
}

type recomputeService struct {
	tx         database.TxRunner
	candidates repositories.CandidateRepository
	votes      repositories.VoteRepository
	leadership repositories.LeadershipRepository
	projects   repositories.ProjectRepository
	ranks      RankService
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewRecomputeService creates a new RecomputeService.
func NewRecomputeService(
	tx database.TxRunner,
	candidates repositories.CandidateRepository,
	votes repositories.VoteRepository,
	leadership repositories.LeadershipRepository,
	projects repositories.ProjectRepository,
	ranks RankService,
	cat *catalog.Catalog,
	m *metrics.Metrics,
	logger *zap.Logger,
) RecomputeService {
	return &recomputeService{
		tx:         tx,
		candidates: candidates,
		votes:      votes,
		leadership: leadership,
		projects:   projects,
		ranks:      ranks,
		catalog:    cat,
		metrics:    m,
		logger:     logger.Named("recompute-service"),
	}
}

var _ RecomputeService = (*recomputeService)(nil)

func (s *recomputeService) RecomputeProject(ctx context.Context, projectID uuid.UUID) (*models.RankSnapshot, error) {
	var snapshot *models.RankSnapshot

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		fields, err := s.candidates.DistinctFields(ctx, projectID)
		if err != nil {
			return fmt.Errorf("list candidate fields: %w", err)
		}

		for _, fieldKey := range fields {
			if err := s.rebuildFieldState(ctx, projectID, fieldKey); err != nil {
				return fmt.Errorf("rebuild field %q: %w", fieldKey, err)
			}
		}

		if err := s.projects.DeleteFieldStatesExcept(ctx, projectID, fields); err != nil {
			return err
		}

		snapshot, err = s.ranks.Recompute(ctx, projectID)
		return err
	})
	if err != nil {
		s.metrics.RecomputeFailures.Inc()
		return nil, err
	}

	s.metrics.RecomputeRuns.Inc()
	return snapshot, nil
}

// rebuildFieldState derives one field-state row from scratch. Leader
// identity comes from the leadership log; weight and voter counts from
// the vote ledger; the accepted flag is re-derived from the catalog
// thresholds, exactly as the live path derives it.
func (s *recomputeService) rebuildFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) error {
	desc, err := s.catalog.Descriptor(fieldKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownFieldKey) {
			// Candidates submitted under a since-removed catalog key keep
			// their history but get no live state.
			s.logger.Warn("Skipping field absent from catalog",
				zap.String("project_id", projectID.String()),
				zap.String("field_key", fieldKey))
			return nil
		}
		return err
	}

	latest, err := s.leadership.Latest(ctx, projectID, fieldKey)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("get latest leadership entry: %w", err)
	}

	state := &models.FieldState{
		ProjectID: projectID,
		FieldKey:  fieldKey,
	}

	if latest != nil && latest.CandidateID != nil {
		tallies, err := s.votes.AggregateByCandidate(ctx, projectID, fieldKey)
		if err != nil {
			return fmt.Errorf("aggregate votes: %w", err)
		}
		for i := range tallies {
			if tallies[i].CandidateID == *latest.CandidateID {
				state.LeadingCandidateID = latest.CandidateID
				state.LeadingWeight = tallies[i].Weight
				state.VoterCount = tallies[i].Voters
				break
			}
		}
		state.Accepted = state.LeadingCandidateID != nil &&
			state.VoterCount >= desc.Quorum &&
			state.LeadingWeight >= desc.MinWeight
	}

	return s.projects.UpsertFieldState(ctx, state)
}

func (s *recomputeService) RecomputeAll(ctx context.Context) (int, error) {
	var ids []uuid.UUID

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.projects.ListIDs(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}

	retryCfg := &retry.Config{MaxRetries: 2, InitialDelay: retry.DefaultConfig().InitialDelay}

	rebuilt := 0
	for _, id := range ids {
		err := retry.DoIfRetryable(ctx, retryCfg, func() error {
			_, err := s.RecomputeProject(ctx, id)
			return err
		})
		if err != nil {
			// Partial-failure isolation: one broken project must not
			// abort the batch.
			s.logger.Error("Project recompute failed",
				zap.String("project_id", id.String()),
				zap.Error(err))
			continue
		}
		rebuilt++
	}

	s.logger.Info("Batch recompute finished",
		zap.Int("projects", len(ids)),
		zap.Int("rebuilt", rebuilt))

	return rebuilt, nil
}
